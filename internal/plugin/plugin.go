// Package plugin lets an external process grade answers. Judges ship
// as go-plugin binaries speaking net/rpc under the handshake below,
// so graders can be swapped without rebuilding the trainer.
package plugin

import (
	"context"
	"fmt"
	"net/rpc"

	hcplugin "github.com/hashicorp/go-plugin"

	"github.com/mnemonlabs/mnemon/internal/judge"
)

// Handshake is used to handshake between host and plugin. The cookie
// rejects plain executables launched by mistake, nothing more.
var Handshake = hcplugin.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "MNEMON_PLUGIN_MAGIC_COOKIE",
	MagicCookieValue: "mnemon-judge",
}

// PluginMap is the map of plugins we can dispense.
var PluginMap = map[string]hcplugin.Plugin{
	"judge": &JudgePlugin{},
}

// GradeArgs is the wire request for one grading call.
type GradeArgs struct {
	Question string
	Golden   string
	Answer   string
}

// GradeReply is the wire response.
type GradeReply struct {
	Correct bool
}

// JudgePlugin implements hcplugin.Plugin for a judge.Judge.
type JudgePlugin struct {
	Impl judge.Judge
}

var _ hcplugin.Plugin = (*JudgePlugin)(nil)

func (p *JudgePlugin) Server(*hcplugin.MuxBroker) (interface{}, error) {
	return &JudgeServer{Impl: p.Impl}, nil
}

func (p *JudgePlugin) Client(_ *hcplugin.MuxBroker, c *rpc.Client) (interface{}, error) {
	return &JudgeClient{client: c}, nil
}

// JudgeServer exposes a local judge implementation over RPC.
type JudgeServer struct {
	Impl judge.Judge
}

// Grade runs the wrapped judge. Plugin processes have no caller
// context, so the call runs under context.Background; deadlines
// belong to the plugin itself.
func (s *JudgeServer) Grade(args *GradeArgs, reply *GradeReply) error {
	correct, err := s.Impl.Grade(context.Background(), args.Question, args.Golden, args.Answer)
	if err != nil {
		return err
	}
	reply.Correct = correct
	return nil
}

// JudgeClient calls a judge in another process.
type JudgeClient struct {
	client *rpc.Client
}

var _ judge.Judge = (*JudgeClient)(nil)

// Grade forwards the call over RPC. Transport and remote errors come
// back as grading failures so evaluation degrades instead of crashing.
func (c *JudgeClient) Grade(_ context.Context, question, golden, answer string) (bool, error) {
	args := &GradeArgs{
		Question: question,
		Golden:   golden,
		Answer:   answer,
	}
	var reply GradeReply
	if err := c.client.Call("Plugin.Grade", args, &reply); err != nil {
		return false, fmt.Errorf("%w: %v", judge.ErrGradingFailed, err)
	}
	return reply.Correct, nil
}
