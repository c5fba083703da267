package middlewares

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stratevia/planning_backend/config"
	"github.com/stratevia/planning_backend/models"
	"github.com/stratevia/planning_backend/utils"
)

// SessionMiddleware resolves the opaque session token into the full caller
// identity: company, user id, role, department. Requests without a token
// pass through anonymous; handlers decide what needs authentication.
func SessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Request.Header.Get("token")
		if token == "" {
			c.Next()
			return
		}
		username, exists, err := config.GetRedisValue("Token:" + token)
		if err != nil || !exists {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		user, err := lookupSessionUser(c.Request.Context(), username)
		if err != nil || user == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		ctx := utils.SetTokenInContext(c.Request.Context(), token)
		ctx = utils.SetUsernameInContext(ctx, username)
		ctx = utils.SetCompanyIdInContext(ctx, user.CompanyId)
		ctx = utils.SetUserIdInContext(ctx, user.ID)
		ctx = utils.SetUserNameInContext(ctx, user.Name)
		ctx = utils.SetUserRoleInContext(ctx, string(user.Role))
		ctx = utils.SetDepartmentIdInContext(ctx, user.DepartmentId)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// lookupSessionUser reads the cached user first and falls back to the
// database; sessions must survive a cold Redis.
func lookupSessionUser(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	exists, err := config.GetRedisObject("User:"+username, &user)
	if err == nil && exists {
		return &user, nil
	}
	db := config.GetDB()
	if db == nil {
		return nil, nil
	}
	if err := db.WithContext(ctx).Model(&models.User{}).
		Where("username = ?", username).
		Take(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}
