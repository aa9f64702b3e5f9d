package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("users")
		if err != nil {
			return err
		}

		// add field
		collection.Fields.Add(&core.TextField{
			Id:   "text3979383731",
			Name: "wallet_address",
			Max:  200,
		})

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("users")
		if err != nil {
			return err
		}

		// remove field
		collection.Fields.RemoveById("text3979383731")

		return app.Save(collection)
	})
}
