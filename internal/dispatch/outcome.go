package dispatch

// Class is the internal error taxonomy produced by every
// pushkin and collapsed by the Dispatcher into the two-outcome wire reply.
type Class int

const (
	// Accepted means the provider acknowledged the push; don't retry.
	Accepted Class = iota
	// Rejected means the device registration is dead; the caller must forget
	// the pushkey named in Outcome.RejectedKey.
	Rejected
	// TransientProvider means the caller should retry the whole batch later.
	TransientProvider
	// TransientAuth is a credential failure: the credential refresh itself
	// failed, or the provider still rejected the credential after the
	// pushkin's single refresh-and-retry. The Dispatcher treats it like
	// TransientProvider.
	TransientAuth
	// PermanentConfig is a 4xx that indicates gateway misconfiguration, not a
	// device fault. It is logged distinctively but surfaced as
	// TransientProvider
	PermanentConfig
)

func (c Class) String() string {
	switch c {
	case Accepted:
		return "accepted"
	case Rejected:
		return "rejected"
	case TransientProvider:
		return "transient_provider"
	case TransientAuth:
		return "transient_auth"
	case PermanentConfig:
		return "permanent_config"
	default:
		return "unknown"
	}
}

// Outcome is the per-device result a Pushkin hands back to the Dispatcher.
type Outcome struct {
	Class Class
	// RejectedKey is set only when Class == Rejected. It is usually the
	// pushkey that was sent, but a provider may report a canonical
	// replacement (FCM registration-id swap) instead.
	RejectedKey string
	// Reason is a short operator-facing string logged on transient/permanent
	// outcomes; never sent on the wire.
	Reason string
}

func accepted() Outcome { return Outcome{Class: Accepted} }

func rejected(key string) Outcome { return Outcome{Class: Rejected, RejectedKey: key} }

func transient(reason string) Outcome { return Outcome{Class: TransientProvider, Reason: reason} }

func permanentConfig(reason string) Outcome { return Outcome{Class: PermanentConfig, Reason: reason} }
