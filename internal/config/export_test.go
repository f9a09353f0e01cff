package config

// SetLookupEnv replaces the environment lookup used by ResolveAPIKey and
// returns a function restoring the previous one.
func SetLookupEnv(fn func(string) (string, bool)) (restore func()) {
	prev := lookupEnv
	lookupEnv = fn
	return func() { lookupEnv = prev }
}
