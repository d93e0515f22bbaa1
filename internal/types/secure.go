package types

const redactedPlaceholder = "***REDACTED***"

var redactedJSON = []byte(`"***REDACTED***"`)

// SecretString holds a credential (gateway key, JWT secret, cron secret)
// and redacts itself when printed or serialized. Call Unmask only at the
// point the raw value leaves the process, such as an Authorization header.
type SecretString string

func (s SecretString) String() string {
	return redactedPlaceholder
}

func (s SecretString) MarshalJSON() ([]byte, error) {
	return redactedJSON, nil
}

// Unmask returns the raw value.
func (s SecretString) Unmask() string {
	return string(s)
}

// IsSet reports whether a non-empty secret was configured.
func (s SecretString) IsSet() bool {
	return s != ""
}
