// Package orm wraps a Bun connection handle into an Instance and layers two
// capabilities on top of it: a registry that maps model names to model
// types, and virtual (computed) attributes resolved per model type.
//
// New applies both capabilities, registry first, which is what model
// definitions expect:
//
//	inst, err := orm.New(db)
//	if err != nil {
//		return err
//	}
//	_, err = orm.Define[Widget](inst, "Widget",
//		orm.Computed("label", func(w *Widget) any { return w.Name + " #" + strconv.FormatInt(w.ID, 10) }),
//	)
package orm
