package config

import "os"

// ExpandEnv expands ${VAR}/$VAR references in YAML content before parsing,
// the same shell-style expansion the teacher applies in
// pkg/config/envexpand.go. Missing variables expand to empty string;
// Validate catches any field left empty that is actually required.
func ExpandEnv(data []byte) []byte {
	return []byte(os.Expand(string(data), os.Getenv))
}
