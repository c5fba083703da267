package main

import (
	"context"
	"flag"
	"log"

	"github.com/stratevia/planning_backend/config"
	"github.com/stratevia/planning_backend/models"
	"github.com/stratevia/planning_backend/utils"
)

// seed-admin bootstraps a tenant: creates the company (with its default
// department) and the first admin user. Run once per tenant.
func main() {
	companyName := flag.String("company", "", "company name")
	ownerEmail := flag.String("email", "", "admin email (also the company owner email)")
	adminName := flag.String("name", "Administrador", "admin display name")
	password := flag.String("password", "", "admin password (generated when empty)")
	country := flag.String("country", "ES", "company country code")
	timezone := flag.String("timezone", "Europe/Madrid", "company timezone")
	flag.Parse()

	if *companyName == "" || *ownerEmail == "" {
		log.Fatal("both -company and -email are required")
	}
	if !utils.IsValidEmail(*ownerEmail) {
		log.Fatalf("email is not valid: %s", *ownerEmail)
	}

	config.ConnectDatabaseWithRetry()
	models.MigrateTable()

	ctx := context.Background()

	company, err := models.CreateCompany(ctx, &models.NewCompany{
		Name:       *companyName,
		OwnerEmail: *ownerEmail,
		Country:    *country,
		Timezone:   *timezone,
	})
	if err != nil {
		log.Fatalf("create company: %v", err)
	}

	ctx = utils.SetCompanyIdInContext(ctx, company.ID.String())
	admin, err := models.CreateUser(ctx, &models.NewUser{
		Name:     *adminName,
		Email:    *ownerEmail,
		Password: *password,
		Role:     models.UserRoleAdmin,
	})
	if err != nil {
		log.Fatalf("create admin user: %v", err)
	}

	log.Printf("company %s (%s) seeded; admin user %s (id %d)", company.Name, company.ID, admin.Username, admin.ID)
}
