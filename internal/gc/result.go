package gc

// ResultCode is the numeric result attached to protocol errors.
type ResultCode int

// Result codes that denote a revoked, invalid, or expired saved
// credential. Logging on with a stored refresh token that hits one of
// these will never succeed again, so the session layer evicts the
// account's saved state when it sees them.
const (
	ResultInvalidPassword ResultCode = 5
	ResultAccessDenied    ResultCode = 15
	ResultIllegalPassword ResultCode = 35
)

// StaleCredential reports whether the code means a saved credential is
// permanently unusable.
func (c ResultCode) StaleCredential() bool {
	switch c {
	case ResultInvalidPassword, ResultAccessDenied, ResultIllegalPassword:
		return true
	default:
		return false
	}
}
