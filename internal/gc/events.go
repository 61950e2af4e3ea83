package gc

// Event is a message pushed by the protocol connection. The connection
// communicates almost everything asynchronously — log-on success, guard
// prompts, errors, and item mutations all arrive as events rather than as
// call results. Consumers receive events through a Mux subscription.
type Event interface {
	event()
}

// LoggedOn fires when the connection has fully logged on to the service.
type LoggedOn struct {
	// AccountID is the numeric-string id of the account that logged on.
	AccountID string
}

// Authenticated fires when a credential login session has produced a
// refresh token. The connection is not logged on yet — the consumer is
// expected to persist the token and issue LogOn with it.
type Authenticated struct {
	RefreshToken string
	AccountName  string
}

// GuardKind identifies which second factor the service is asking for.
type GuardKind string

const (
	GuardEmail  GuardKind = "email"
	GuardMobile GuardKind = "mobile"
)

// GuardRequired fires when a credential login needs a second-factor code.
type GuardRequired struct {
	Kind GuardKind
}

// Disconnected fires when the connection drops, whether requested or not.
type Disconnected struct {
	Code    int
	Message string
}

// Errored fires on any protocol-level error. Code is zero when the
// service did not attach a numeric result.
type Errored struct {
	Code    ResultCode
	Message string
}

// PersonaInfo carries persona data for an account. The service only sends
// it in response to an explicit RequestPersona call.
type PersonaInfo struct {
	AccountID string
	Name      string
	AvatarURL string
}

// GCReady fires once the game-coordinator side of the connection is up
// and the live item collection is populated.
type GCReady struct{}

// ItemAcquired fires when an item appears in the live inventory, for
// example after retrieving it from a storage unit.
type ItemAcquired struct {
	Item Item
}

// ItemRemoved fires when an item leaves the live inventory, for example
// after depositing it into a storage unit.
type ItemRemoved struct {
	Item Item
}

// ItemChanged fires when an existing item mutates in place (renames,
// storage-unit counters).
type ItemChanged struct {
	Item Item
}

// CustomizationNotice is a generic "item customization changed"
// notification. Some server responses send it instead of the specific
// acquired/removed event, so transfer completion must race both.
type CustomizationNotice struct {
	ItemIDs []string
}

func (LoggedOn) event()            {}
func (Authenticated) event()       {}
func (GuardRequired) event()       {}
func (Disconnected) event()        {}
func (Errored) event()             {}
func (PersonaInfo) event()         {}
func (GCReady) event()             {}
func (ItemAcquired) event()        {}
func (ItemRemoved) event()         {}
func (ItemChanged) event()         {}
func (CustomizationNotice) event() {}
