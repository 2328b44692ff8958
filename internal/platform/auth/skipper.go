package auth

import (
	"github.com/labstack/echo/v4"
)

// publicPaths are infrastructure endpoints reachable without credentials.
var publicPaths = map[string]bool{
	"/health":    true,
	"/health/db": true,
}

// AuthSkipper returns true for requests whose route should skip
// authentication. Use it as JWTConfig.Skipper.
func AuthSkipper(c echo.Context) bool {
	return publicPaths[c.Path()]
}
