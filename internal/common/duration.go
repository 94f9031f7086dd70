package common

import "time"

// Duration is a time.Duration that decodes from TOML strings like "15s".
// go-toml maps TOML strings through encoding.TextUnmarshaler, which a bare
// time.Duration field does not implement.
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d Duration) String() string {
	return time.Duration(d).String()
}
