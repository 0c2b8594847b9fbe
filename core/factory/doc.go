// Package factory holds the generic registries used to build pluggable
// backends (stores, notifiers, metric sinks) from configuration. A backend
// is described by a type name plus a raw settings map that the factory
// decodes into its own typed struct.
//
//	reg := factory.NewRegistry[store.DecisionStore]()
//	reg.Register("sqlite", func(conf map[string]any) (store.DecisionStore, error) {
//	    var c struct{ Path string `json:"path"` }
//	    if err := factory.Decode(conf, &c); err != nil {
//	        return nil, err
//	    }
//	    return sqlstore.OpenSQLite(c.Path)
//	})
//	s, err := reg.Create(factory.ModuleConfig{Type: "sqlite", Conf: map[string]any{"path": "decisions.db"}})
package factory
