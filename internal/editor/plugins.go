package editor

import "github.com/dgallion1/tategaki/internal/content"

// Plugin is an editor extension that owns the commands of one node type.
type Plugin interface {
	Name() string
	// NodeType is the node the plugin depends on.
	NodeType() content.NodeType
}

// RubyPlugin enables InsertRuby.
type RubyPlugin struct{}

func (RubyPlugin) Name() string               { return content.PluginRuby }
func (RubyPlugin) NodeType() content.NodeType { return content.TypeRuby }

// TateChuYokoPlugin enables ToggleTateChuYoko.
type TateChuYokoPlugin struct{}

func (TateChuYokoPlugin) Name() string               { return content.PluginTateChuYoko }
func (TateChuYokoPlugin) NodeType() content.NodeType { return content.TypeTateChuYoko }

// AuthorPlugin enables InsertAuthor.
type AuthorPlugin struct{}

func (AuthorPlugin) Name() string               { return content.PluginAuthor }
func (AuthorPlugin) NodeType() content.NodeType { return content.TypeAuthor }

// DefaultPlugins returns the companions of every annotation node.
func DefaultPlugins() []Plugin {
	return []Plugin{RubyPlugin{}, TateChuYokoPlugin{}, AuthorPlugin{}}
}

// validatePlugins checks that every annotation node has its companion and
// every plugin has its node.
func validatePlugins(reg *content.Registry, plugins []Plugin) (map[string]Plugin, error) {
	byName := make(map[string]Plugin, len(plugins))
	for _, p := range plugins {
		if _, dup := byName[p.Name()]; dup {
			return nil, &content.ConfigError{Type: p.NodeType(), Reason: "plugin " + p.Name() + " installed twice"}
		}
		byName[p.Name()] = p
		if _, ok := reg.Lookup(p.NodeType()); !ok {
			return nil, &content.ConfigError{Type: p.NodeType(), Reason: "plugin " + p.Name() + " installed without its node"}
		}
	}
	for _, typ := range reg.Types() {
		cls, _ := reg.Lookup(typ)
		if cls.Companion == "" {
			continue
		}
		if _, ok := byName[cls.Companion]; !ok {
			return nil, &content.ConfigError{Type: typ, Reason: "node registered without plugin " + cls.Companion}
		}
	}
	return byName, nil
}
