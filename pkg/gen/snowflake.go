package gen

import (
	"ticketing-commerce/pkg/config"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
)

var Module = fx.Module("snowflake", fx.Provide(ProvideNode))

// ProvideNode builds the id generator for this process. NODE_ID must be unique per
// running replica or ids may collide across replicas.
func ProvideNode(cfg *config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
