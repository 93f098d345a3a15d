package transform

import "github.com/kiranshivaraju/insrobot/internal/transform/gemini"

// ErrProviderUnavailable is returned while the remote backend's circuit
// breaker is open.
var ErrProviderUnavailable = gemini.ErrUnavailable
