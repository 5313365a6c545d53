// Package stormweaver wires the engine together: a SQL factory producing
// named logged connections, the shared metadata catalog and the default
// action registry, exposed as a Node to the scenario host.
package stormweaver

import (
	"context"
	"fmt"
	"time"

	"github.com/Konsultn-Engineering/stormweaver/action"
	"github.com/Konsultn-Engineering/stormweaver/connector"
	"github.com/Konsultn-Engineering/stormweaver/database"
	"github.com/Konsultn-Engineering/stormweaver/metadata"
	"github.com/Konsultn-Engineering/stormweaver/workload"
)

// OnConnectHook runs scenario code against every fresh connection. It is
// the seam towards the embedded scripting host, which lives outside this
// module.
type OnConnectHook func(conn *connector.Connection)

// SqlFactory produces named logged connections from one server config.
type SqlFactory struct {
	config    connector.Config
	onConnect OnConnectHook
}

// NewSqlFactory builds a factory; onConnect may be nil.
func NewSqlFactory(config connector.Config, onConnect OnConnectHook) *SqlFactory {
	return &SqlFactory{config: config, onConnect: onConnect}
}

// Connect dials a fresh connection for the named owner. The connection
// announces itself to the server through application_name.
func (f *SqlFactory) Connect(ctx context.Context, name string) (*connector.Connection, error) {
	cfg := f.config
	cfg.Params = map[string]string{}
	for k, v := range f.config.Params {
		cfg.Params[k] = v
	}
	if _, ok := cfg.Params["application_name"]; !ok {
		cfg.Params["application_name"] = fmt.Sprintf("stormweaver-%s", name)
	}

	c, err := connector.New("postgres", cfg)
	if err != nil {
		return nil, err
	}
	drv, err := c.Connect(ctx)
	if err != nil {
		return nil, err
	}

	conn := connector.NewConnection(name, drv, nil)
	if f.onConnect != nil {
		f.onConnect(conn)
	}
	return conn, nil
}

// Params returns the server configuration the factory dials with.
func (f *SqlFactory) Params() connector.Config {
	return f.config
}

// Node owns the shared catalog and the action registry, and spawns
// workers and workloads against one database.
type Node struct {
	factory       *SqlFactory
	defaultConfig action.AllConfig
	cat           *metadata.Metadata
	actions       *action.Registry
}

// NewNode builds a node with an empty catalog and the default registry.
func NewNode(factory *SqlFactory) *Node {
	return &Node{
		factory:       factory,
		defaultConfig: action.DefaultConfig(),
		cat:           metadata.New(),
		actions:       action.DefaultRegistry(),
	}
}

func (n *Node) connectorFor(name string) workload.ConnectorFunc {
	return func() (database.Client, error) {
		return n.factory.Connect(context.Background(), name)
	}
}

// InitRandomWorkload builds a workload over the node's catalog and
// registry.
func (n *Node) InitRandomWorkload(params workload.Params) (*workload.Workload, error) {
	return workload.NewWorkload(params, n.connectorFor, n.cat, n.actions, nil)
}

// MakeWorker builds a single utility worker (discovery, validation,
// checksums) outside any workload.
func (n *Node) MakeWorker(name string) (*workload.Worker, error) {
	params := workload.DefaultParams()
	params.ActionConfig = n.defaultConfig
	seed := uint64(time.Now().UnixNano())
	return workload.NewWorker(name, n.connectorFor(name), params, n.cat, seed, nil)
}

// Metadata returns the node's shared catalog.
func (n *Node) Metadata() *metadata.Metadata {
	return n.cat
}

// PossibleActions returns the node's registry for scenario registration.
func (n *Node) PossibleActions() *action.Registry {
	return n.actions
}

// SqlParams returns the server configuration of the node's factory.
func (n *Node) SqlParams() connector.Config {
	return n.factory.Params()
}
