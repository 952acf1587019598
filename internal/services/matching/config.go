package matching

import (
	"errors"
	"fmt"
)

// Weights are the points each piece of evidence contributes to a 0-100 score.
type Weights struct {
	InvoiceNumber float64 `json:"invoice_number"`
	InvoiceDate   float64 `json:"invoice_date"`
	TaxableValue  float64 `json:"taxable_value"`
	TaxAmount     float64 `json:"tax_amount"`
}

func (w Weights) Sum() float64 {
	return w.InvoiceNumber + w.InvoiceDate + w.TaxableValue + w.TaxAmount
}

type Config struct {
	// DateWindowDays bounds candidate selection around the statement date and
	// is the distance at which the date score decays to zero.
	DateWindowDays int `json:"date_window_days"`

	FullMatchThreshold    int `json:"full_match_threshold"`
	PartialMatchThreshold int `json:"partial_match_threshold"`

	Weights Weights `json:"weights"`

	// AmountTolerance is the relative deviation still treated as equal.
	AmountTolerance float64 `json:"amount_tolerance"`
	// TaxableValueCutoff is the relative deviation at which the taxable
	// value score reaches zero.
	TaxableValueCutoff float64 `json:"taxable_value_cutoff"`
}

func DefaultConfig() Config {
	return Config{
		DateWindowDays:        45,
		FullMatchThreshold:    85,
		PartialMatchThreshold: 50,
		Weights: Weights{
			InvoiceNumber: 50,
			InvoiceDate:   20,
			TaxableValue:  20,
			TaxAmount:     10,
		},
		AmountTolerance:    0.01,
		TaxableValueCutoff: 0.10,
	}
}

func (c Config) Validate() error {
	if c.DateWindowDays <= 0 {
		return errors.New("date window must be positive")
	}
	if c.PartialMatchThreshold <= 0 || c.PartialMatchThreshold > c.FullMatchThreshold || c.FullMatchThreshold > 100 {
		return fmt.Errorf("thresholds must satisfy 0 < partial (%d) <= full (%d) <= 100",
			c.PartialMatchThreshold, c.FullMatchThreshold)
	}
	if sum := c.Weights.Sum(); sum < 99.999 || sum > 100.001 {
		return fmt.Errorf("weights must sum to 100, got %.2f", sum)
	}
	if c.AmountTolerance < 0 || c.TaxableValueCutoff <= c.AmountTolerance {
		return errors.New("taxable value cutoff must exceed the amount tolerance")
	}
	return nil
}
