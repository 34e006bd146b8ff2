// Package message models plugin-channel identifiers and the
// source/sink roles a connection plays when sending or receiving a
// plugin message (spec §4.2 PluginMessageBoth), generalized from the
// teacher's message package of the same name.
package message

// ChannelIdentifier names a plugin channel, legacy or modern.
type ChannelIdentifier interface {
	ID() string
}

type simpleChannel string

func (s simpleChannel) ID() string { return string(s) }

func NewChannelIdentifier(id string) ChannelIdentifier { return simpleChannel(id) }

// ChannelMessageSource can have plugin messages sent on its behalf.
type ChannelMessageSource interface {
	SendPluginMessage(identifier ChannelIdentifier, data []byte) error
}

// ChannelMessageSink receives a plugin message and reports whether it
// consumed it (preventing further forwarding).
type ChannelMessageSink interface {
	HandlePluginMessage(identifier ChannelIdentifier, data []byte) bool
}
