package identity

import (
	"context"

	"github.com/roaddetection/identitybridge/internal/channel"
)

// DefaultChannel is the channel name the application layer calls.
const DefaultChannel = "com.roaddetection.security"

// MethodGetSignature is the only method the plugin implements.
const MethodGetSignature = "getSignature"

// Plugin exposes a Bridge on a method channel.
type Plugin struct {
	bridge  *Bridge
	channel string
}

// NewPlugin creates a plugin for bridge on the named channel. An empty name
// means DefaultChannel.
func NewPlugin(bridge *Bridge, channelName string) *Plugin {
	if channelName == "" {
		channelName = DefaultChannel
	}
	return &Plugin{bridge: bridge, channel: channelName}
}

// ChannelName returns the channel the plugin registers on.
func (p *Plugin) ChannelName() string {
	return p.channel
}

// Register installs the plugin's handler on messenger.
func (p *Plugin) Register(messenger *channel.Messenger) {
	messenger.Channel(p.channel).SetMethodCallHandler(p.handle)
}

func (p *Plugin) handle(ctx context.Context, call channel.MethodCall, result channel.Result) {
	switch call.Method {
	case MethodGetSignature:
		result.Success(p.bridge.GetSignature(ctx).Value())
	default:
		result.NotImplemented()
	}
}
