package models

import (
	"log"

	"github.com/stratevia/planning_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Company{}, &Department{},
		&User{},
		&Objective{}, &Initiative{}, &Activity{},
		&ImportLog{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
