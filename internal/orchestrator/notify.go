package orchestrator

import "github.com/rs/zerolog"

// Observer is told each time the executor starts on a new provider.
type Observer interface {
	ProviderSwitch(provider string)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(provider string)

// ProviderSwitch calls f(provider).
func (f ObserverFunc) ProviderSwitch(provider string) { f(provider) }

type channelObserver chan<- string

func (c channelObserver) ProviderSwitch(provider string) {
	select {
	case c <- provider:
	default:
	}
}

// ChannelObserver publishes provider names on ch. Sends never block; a
// full channel drops the event.
func ChannelObserver(ch chan<- string) Observer {
	return channelObserver(ch)
}

// notify invokes obs and swallows any panic so a broken hook cannot abort
// the failover loop.
func notify(obs Observer, provider string, logger zerolog.Logger) {
	if obs == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Warn().Interface("panic", r).Str("provider", provider).Msg("provider switch observer panicked")
		}
	}()
	obs.ProviderSwitch(provider)
}
