package clustering

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/maxpoletaev/kluster/dispatch"
	"github.com/maxpoletaev/kluster/membership"
)

// NodeInfoTask asks members to describe themselves.
type NodeInfoTask struct{}

func (NodeInfoTask) TaskName() string { return "node_info" }

type NodeInfo struct {
	ID          uuid.UUID       `json:"id"`
	Name        string          `json:"name"`
	Role        membership.Role `json:"role"`
	RPCAddr     string          `json:"rpc_addr"`
	JoinedAt    time.Time       `json:"joined_at"`
	ClusterTime time.Time       `json:"cluster_time"`
	Members     int             `json:"members"`
}

func (n *Node) registerTasks() {
	dispatch.Handle(n.tasks, func(_ context.Context, _ NodeInfoTask) (NodeInfo, error) {
		return n.Info(), nil
	})
}

// Info describes this member.
func (n *Node) Info() NodeInfo {
	return NodeInfo{
		ID:          n.self.ID,
		Name:        n.self.Name(),
		Role:        n.self.Role(),
		RPCAddr:     n.self.RPCAddr(),
		JoinedAt:    n.self.JoinedAt(),
		ClusterTime: n.ClusterTime(),
		Members:     n.view.Len(),
	}
}
