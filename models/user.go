package models

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stratevia/planning_backend/config"
	"github.com/stratevia/planning_backend/utils"
	"golang.org/x/crypto/bcrypt"
)

type User struct {
	ID           int       `gorm:"primary_key" json:"id"`
	CompanyId    string    `gorm:"index" json:"company_id"`
	Username     string    `gorm:"size:100;not null;unique" json:"username" binding:"required"`
	Name         string    `gorm:"size:100;not null" json:"name" binding:"required"`
	Email        string    `gorm:"size:100;index;not null" json:"email"`
	Phone        string    `gorm:"size:20" json:"phone"`
	Password     string    `gorm:"size:255;not null" json:"password"`
	Role         UserRole  `gorm:"type:enum('A', 'M', 'C');default:C" json:"role"`
	DepartmentId int       `gorm:"index" json:"department_id"`
	IsActive     *bool     `gorm:"not null" json:"is_active"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewUser struct {
	Username     string   `json:"username"`
	Name         string   `json:"name" binding:"required"`
	Email        string   `json:"email" binding:"required,email"`
	Phone        string   `json:"phone"`
	Password     string   `json:"password"`
	Role         UserRole `json:"role"`
	DepartmentId int      `json:"department_id"`
}

/*
caches:
	User:$username
	UserList:$companyId
*/

func (user User) RemoveInstanceRedis() error {
	if err := config.RemoveRedisKey("User:" + user.Username); err != nil {
		return err
	}
	return nil
}

func (user User) RemoveAllRedis() error {
	if err := config.RemoveRedisKey("UserList:" + user.CompanyId); err != nil {
		return err
	}
	return nil
}

func (result *User) PrepareGive() {
	result.Password = ""
}

type LoginInfo struct {
	Token       string `json:"token"`
	Name        string `json:"name"`
	Role        string `json:"role"`
	CompanyId   string `json:"company_id"`
	CompanyName string `json:"company_name"`
}

func Login(ctx context.Context, username string, password string) (*LoginInfo, error) {

	db := config.GetDB()
	var result LoginInfo

	user := User{}

	exists, err := config.GetRedisObject("User:"+username, &user)
	if err != nil {
		return &result, err
	}
	if !exists {
		err = db.WithContext(ctx).Model(&User{}).Where("username = ?", username).Take(&user).Error
		if err != nil {
			return &result, errors.New("invalid username or password")
		}
	}

	err = utils.ComparePassword(user.Password, password)
	if err != nil && err == bcrypt.ErrMismatchedHashAndPassword {
		return &result, errors.New("invalid username or password")
	}
	if !utils.DereferencePtr(user.IsActive, false) {
		return &result, errors.New("account is deactivated")
	}

	company, err := GetCompany(utils.SetSkipTenantScopeInContext(ctx, true), user.CompanyId)
	if err != nil {
		return &result, err
	}

	token := uuid.NewString()
	if err := config.SetRedisValue("Token:"+token, username, utils.GetCacheLifespan()); err != nil {
		return &result, err
	}
	if err := config.AddRedisSet("Tokens:"+username, token); err != nil {
		return &result, err
	}
	if err := config.SetRedisObject("User:"+username, &user, 0); err != nil {
		return &result, err
	}

	result.Token = token
	result.Name = user.Name
	result.Role = string(user.Role)
	result.CompanyId = user.CompanyId
	result.CompanyName = company.Name
	return &result, nil
}

// destroy current session
func Logout(ctx context.Context) (bool, error) {
	token, ok := utils.GetTokenFromContext(ctx)
	if !ok || token == "" {
		return false, errors.New("token is required")
	}
	err := config.RemoveRedisKey("Token:" + fmt.Sprint(token))
	if err != nil {
		return false, nil
	}
	// remove current token from tokens list
	username, ok := utils.GetUsernameFromContext(ctx)
	if !ok || username == "" {
		return false, errors.New("user not found")
	}
	if err := config.RemoveRedisSetMember("Tokens:"+username, token); err != nil {
		return false, err
	}
	return true, nil
}

func (input *NewUser) validate(ctx context.Context, companyId string) error {
	if !utils.IsValidEmail(input.Email) {
		return errors.New("invalid email")
	}
	if err := utils.ValidateUnique[User](ctx, companyId, "email", input.Email, 0); err != nil {
		return errors.New("email already in use")
	}
	if len(strings.TrimSpace(input.Phone)) > 0 {
		if err := utils.ValidatePhoneNumber(input.Phone, utils.CountryCode); err != nil {
			return errors.New("invalid phone number")
		}
	}
	if input.Role == UserRoleManager && input.DepartmentId > 0 {
		if err := utils.ValidateResourceId[Department](ctx, companyId, input.DepartmentId); err != nil {
			return errors.New("department not found")
		}
	}
	return nil
}

func CreateUser(ctx context.Context, input *NewUser) (*User, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}
	if err := input.validate(ctx, companyId); err != nil {
		return nil, err
	}

	username := input.Username
	if username == "" {
		username = input.Email
	}
	password := input.Password
	if password == "" {
		password = uuid.NewString()
	}
	hashed, err := utils.HashPassword(password)
	if err != nil {
		return nil, err
	}
	role := input.Role
	if role == "" {
		role = UserRoleContributor
	}

	db := config.GetDB()
	user := User{
		CompanyId:    companyId,
		Username:     username,
		Name:         input.Name,
		Email:        strings.ToLower(strings.TrimSpace(input.Email)),
		Phone:        input.Phone,
		Password:     string(hashed),
		Role:         role,
		DepartmentId: input.DepartmentId,
		IsActive:     utils.NewTrue(),
	}
	if err := db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, err
	}
	if err := user.RemoveAllRedis(); err != nil {
		return nil, err
	}
	return &user, nil
}

func GetUser(ctx context.Context, id int) (*User, error) {
	db := config.GetDB()
	var user User
	if err := db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &user, nil
}
