package transcoder

import (
	"context"
	"fmt"
	"strings"
)

// OverwritePolicy decides what happens when an output file already exists
type OverwritePolicy int

// Overwrite policies. The zero value refuses to replace existing files.
const (
	OverwriteDeny OverwritePolicy = iota
	OverwriteAllow
	OverwritePrompt
)

// ConfirmFunc asks whether path may be replaced
type ConfirmFunc func(ctx context.Context, path string) (bool, error)

// String returns the policy name
func (p OverwritePolicy) String() string {
	switch p {
	case OverwriteAllow:
		return "allow"
	case OverwritePrompt:
		return "prompt"
	default:
		return "deny"
	}
}

// ParseOverwritePolicy parses a policy name
func ParseOverwritePolicy(value string) (OverwritePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "deny", "never", "no":
		return OverwriteDeny, nil
	case "allow", "always", "yes":
		return OverwriteAllow, nil
	case "prompt", "ask":
		return OverwritePrompt, nil
	}
	return OverwriteDeny, fmt.Errorf("unknown overwrite policy %q", value)
}

// CheckOverwrite returns ErrOverwriteDenied when path exists and the policy
// does not allow replacing it. A prompt without a confirm func is a refusal.
func CheckOverwrite(ctx context.Context, path string, policy OverwritePolicy, confirm ConfirmFunc) error {
	if !fileExists(path) {
		return nil
	}

	switch policy {
	case OverwriteAllow:
		return nil
	case OverwritePrompt:
		if confirm == nil {
			return fmt.Errorf("%w: %s", ErrOverwriteDenied, path)
		}
		ok, err := confirm(ctx, path)
		if err != nil {
			return fmt.Errorf("failed to confirm overwrite of %s: %w", path, err)
		}
		if !ok {
			return fmt.Errorf("%w: %s", ErrOverwriteDenied, path)
		}
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrOverwriteDenied, path)
	}
}
