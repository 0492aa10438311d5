package models

import (
	"database/sql/driver"
	"fmt"
	"time"
)

const (
	// DateLayout is the day/month/year layout accepted from callers
	DateLayout = "02/01/2006"
	// ISODateLayout is the layout used in responses
	ISODateLayout = "2006-01-02"
)

// Date is a calendar date without time of day (SQL DATE)
type Date struct {
	time.Time
}

// NewDate truncates t to its calendar day
func NewDate(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Time: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a dd/mm/yyyy date
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, err
	}
	return NewDate(t), nil
}

// String formats the date as yyyy-mm-dd
func (d Date) String() string {
	return d.Format(ISODateLayout)
}

// MarshalJSON encodes the date as "yyyy-mm-dd"
func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

// UnmarshalJSON accepts "yyyy-mm-dd"
func (d *Date) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return fmt.Errorf("invalid date %s", data)
	}
	t, err := time.Parse(ISODateLayout, string(data[1:len(data)-1]))
	if err != nil {
		return err
	}
	*d = NewDate(t)
	return nil
}

// Scan implements sql.Scanner
func (d *Date) Scan(src interface{}) error {
	switch v := src.(type) {
	case time.Time:
		*d = NewDate(v)
		return nil
	case []byte:
		return d.scanString(string(v))
	case string:
		return d.scanString(v)
	default:
		return fmt.Errorf("cannot scan %T into Date", src)
	}
}

func (d *Date) scanString(s string) error {
	t, err := time.Parse(ISODateLayout, s)
	if err != nil {
		return err
	}
	*d = NewDate(t)
	return nil
}

// Value implements driver.Valuer
func (d Date) Value() (driver.Value, error) {
	return d.Time, nil
}
