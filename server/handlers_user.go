package server

import (
	"github.com/gin-gonic/gin"

	"github.com/brandpact/pact/internal/auth"
	"github.com/brandpact/pact/misc"
)

func signUp(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		var u auth.User
		if err := misc.BindJSON(c, &u); err != nil {
			c.JSON(400, misc.StatusErr("Error unmarshalling request body"))
			return
		}

		if err := s.auth.SignUp(&u); err != nil {
			c.JSON(400, misc.StatusErr(err.Error()))
			return
		}

		// The api key comes back exactly once, at signup
		c.JSON(200, &u)
	}
}
