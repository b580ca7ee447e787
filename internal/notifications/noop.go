package notifications

// NoopNotifier discards all alerts. Used when no notification channel is
// configured.
type NoopNotifier struct{}

func NewNoopNotifier() *NoopNotifier {
	return &NoopNotifier{}
}

func (n *NoopNotifier) SendAlert(level, message string) error {
	return nil
}
