package model

import (
	"database/sql/driver"

	"github.com/shopspring/decimal"
)

// ScoreScale 分数保留两位小数
const ScoreScale = 2

// Score 可为空的定点分数，对应 numeric(5,2)
type Score struct {
	Decimal decimal.Decimal
	Valid   bool
}

func NewScore(d decimal.Decimal) Score {
	return Score{Decimal: d.Round(ScoreScale), Valid: true}
}

func ScoreFromInt(points int) Score {
	return NewScore(decimal.NewFromInt(int64(points)))
}

func (s *Score) Scan(value interface{}) error {
	var nd decimal.NullDecimal
	if err := nd.Scan(value); err != nil {
		return err
	}
	s.Valid = nd.Valid
	s.Decimal = nd.Decimal.Round(ScoreScale)
	return nil
}

func (s Score) Value() (driver.Value, error) {
	if !s.Valid {
		return nil, nil
	}
	return s.Decimal.StringFixed(ScoreScale), nil
}

// MarshalJSON 输出为两位小数的数字，空值输出 null
func (s Score) MarshalJSON() ([]byte, error) {
	if !s.Valid {
		return []byte("null"), nil
	}
	return []byte(s.Decimal.StringFixed(ScoreScale)), nil
}

func (s *Score) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*s = Score{}
		return nil
	}
	var d decimal.Decimal
	if err := d.UnmarshalJSON(data); err != nil {
		return err
	}
	*s = NewScore(d)
	return nil
}

func (s Score) String() string {
	if !s.Valid {
		return "null"
	}
	return s.Decimal.StringFixed(ScoreScale)
}

// SumScores 累加所有已评分答案的分数，未评分（null）的答案不计入
func SumScores(answers []ExamAnswer) Score {
	total := decimal.Zero
	for _, a := range answers {
		if a.Score.Valid {
			total = total.Add(a.Score.Decimal)
		}
	}
	return NewScore(total)
}
