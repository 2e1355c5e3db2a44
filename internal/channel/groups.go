package channel

import (
	"context"
	"fmt"

	"github.com/jmehdipour/retreat-sync/internal/config"
	"go.uber.org/zap"
)

type GroupMember struct {
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

type GroupRequest struct {
	FamilyID int64         `json:"familyId"`
	Name     string        `json:"name"`
	Channel  Kind          `json:"channel"`
	Members  []GroupMember `json:"members"`
}

type Group struct {
	ExternalID string `json:"externalId"`
	Link       string `json:"link"`
}

// GroupProvisioner creates group chats on the external platform.
type GroupProvisioner interface {
	CreateGroup(ctx context.Context, req GroupRequest) (Group, error)
}

type HTTPGroupProvisioner struct {
	p *HTTPProvider
}

func NewHTTPGroupProvisioner(pc config.ProviderConfig, log *zap.Logger) *HTTPGroupProvisioner {
	return &HTTPGroupProvisioner{p: NewHTTPProvider(pc, log)}
}

func (g *HTTPGroupProvisioner) CreateGroup(ctx context.Context, req GroupRequest) (Group, error) {
	var out Group
	if err := g.p.Call(ctx, req, &out); err != nil {
		return Group{}, err
	}
	if out.ExternalID == "" || out.Link == "" {
		return Group{}, fmt.Errorf("provider=%s returned incomplete group %+v", g.p.Name(), out)
	}
	return out, nil
}
