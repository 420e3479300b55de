package swarm

import (
	"fmt"
	"strings"
)

// Role is a cluster member's role, also the value embedded in its join
// token.
type Role string

const (
	RoleWorker  Role = "worker"
	RoleManager Role = "manager"
)

// GenerateJoinToken builds a token of the form
// SWMTKN-1-<first-8-of-clusterID>-<role>-<25-hex-random> (spec.md §4.K).
func GenerateJoinToken(clusterID string, role Role) (string, error) {
	if len(clusterID) < 8 {
		return "", fmt.Errorf("cluster id too short to derive a token prefix")
	}
	random, err := randomHex(13) // 26 hex chars, trimmed to 25 below
	if err != nil {
		return "", err
	}
	random = random[:25]
	return fmt.Sprintf("SWMTKN-1-%s-%s-%s", clusterID[:8], role, random), nil
}

// GenerateUnlockKey builds an auto-lock unlock key of the form
// SWMKEY-1-<32-hex>.
func GenerateUnlockKey() (string, error) {
	random, err := randomHex(16)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("SWMKEY-1-%s", random), nil
}

// ParseJoinToken recovers the role and the 8-hex cluster id prefix a token
// was minted for. The role is inferred from the literal "-manager-"
// substring, exactly as spec.md §4.K specifies, rather than trusting
// positional parsing alone.
func ParseJoinToken(token string) (clusterIDPrefix string, role Role, err error) {
	parts := strings.Split(token, "-")
	if len(parts) != 5 || parts[0] != "SWMTKN" || parts[1] != "1" {
		return "", "", fmt.Errorf("malformed join token")
	}
	clusterIDPrefix = parts[2]

	if strings.Contains(token, "-manager-") {
		role = RoleManager
	} else {
		role = RoleWorker
	}
	return clusterIDPrefix, role, nil
}
