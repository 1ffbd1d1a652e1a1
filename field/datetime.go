package field

import (
	"time"

	"github.com/lestrrat-go/strftime"

	"github.com/bearlytools/bitcodec/errors"
)

// DateTime is a 32 bit count of seconds since the Unix epoch. Its value is a time.Time in the
// local time zone, or UTC with WithUTC(true).
type DateTime struct {
	Uint
	utc     bool
	pattern string
}

// NewDateTime creates a DateTime that starts at the epoch.
func NewDateTime(name string, opts ...Option) *DateTime {
	o := newOptions(opts)
	d := &DateTime{utc: o.utc, pattern: o.dateFormat}
	if _, err := strftime.New(d.pattern); err != nil {
		panic("field.NewDateTime(): bad date format: " + err.Error())
	}
	d.initUint(d, name, 32, o)
	applyDefault(d, o)
	return d
}

// Time returns the field's value.
func (d *DateTime) Time() time.Time {
	t := time.Unix(int64(d.Uint64()), 0)
	if d.utc {
		return t.UTC()
	}
	return t.Local()
}

// Value implements Field.Value(). It returns a time.Time.
func (d *DateTime) Value() any {
	return d.Time()
}

// SetValue implements Field.SetValue(). It accepts a time.Time or integer seconds. Sub second
// precision is dropped.
func (d *DateTime) SetValue(v any) error {
	t, ok := v.(time.Time)
	if !ok {
		return d.Uint.SetValue(v)
	}
	secs := t.Unix()
	if secs < 0 || secs > int64(maxUint(32)) {
		return errors.Wrapf(errors.ErrDomain, "%s: %s is outside the 32 bit epoch range", Path(d.me()), t)
	}
	return d.SetUint64(uint64(secs))
}

// Format implements Field.Format() using the field's strftime pattern.
func (d *DateTime) Format() string {
	s, err := strftime.Format(d.pattern, d.Time())
	if err != nil {
		return d.Time().Format(time.RFC3339)
	}
	return s
}
