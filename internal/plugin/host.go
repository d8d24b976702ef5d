package plugin

import (
	"fmt"
	"os/exec"

	hclog "github.com/hashicorp/go-hclog"
	hcplugin "github.com/hashicorp/go-plugin"

	"github.com/mnemonlabs/mnemon/internal/judge"
)

// Host owns a running judge plugin process.
type Host struct {
	client *hcplugin.Client
	judge  judge.Judge
}

// LoadJudge launches the plugin binary at path and dispenses its
// judge. The caller must Close the host to reap the process.
func LoadJudge(path string) (*Host, error) {
	client := hcplugin.NewClient(&hcplugin.ClientConfig{
		HandshakeConfig:  Handshake,
		Plugins:          PluginMap,
		Cmd:              exec.Command(path),
		AllowedProtocols: []hcplugin.Protocol{hcplugin.ProtocolNetRPC},
		Logger:           hclog.NewNullLogger(),
	})

	rpcClient, err := client.Client()
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("failed to start judge plugin %s: %w", path, err)
	}
	raw, err := rpcClient.Dispense("judge")
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("failed to dispense judge from %s: %w", path, err)
	}
	j, ok := raw.(judge.Judge)
	if !ok {
		client.Kill()
		return nil, fmt.Errorf("plugin %s does not serve a judge", path)
	}
	return &Host{client: client, judge: j}, nil
}

// Judge returns the dispensed judge.
func (h *Host) Judge() judge.Judge {
	return h.judge
}

// Close kills the plugin process.
func (h *Host) Close() {
	h.client.Kill()
}

// ServeJudge turns the current process into a judge plugin. It blocks
// until the host disconnects; plugin main functions call it last.
func ServeJudge(j judge.Judge) {
	hcplugin.Serve(&hcplugin.ServeConfig{
		HandshakeConfig: Handshake,
		Plugins: map[string]hcplugin.Plugin{
			"judge": &JudgePlugin{Impl: j},
		},
	})
}
