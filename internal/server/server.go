package server

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/civicvault/syncd/internal/blobstore"
	"github.com/civicvault/syncd/internal/database"
	"github.com/civicvault/syncd/internal/notify"
	"github.com/civicvault/syncd/internal/server/middlewares"
	"github.com/civicvault/syncd/internal/syncqueue"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// A Controller is an Iversion Of Control pattern used to init the server package.
type Controller struct {
	Version       string
	Database      database.Client
	Queue         *syncqueue.Queue
	Blobs         *blobstore.Store
	Notifications notify.Registry
	// JWT params
	SigningKey []byte
}

// EchoEngine instantiates the wep server.
func EchoEngine(ctrl Controller) *echo.Echo {
	engine := echo.New()
	engine.Use(middleware.Recover())
	engine.Use(middleware.Secure())
	engine.Use(middleware.CORSWithConfig(middleware.DefaultCORSConfig))
	engine.Use(middleware.GzipWithConfig(middleware.GzipConfig{
		Skipper: streaming,
	}))

	engine.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Format: "[${status}] ${method} ${uri} (${bytes_in}) ${latency_human}\n",
	}))
	engine.Binder = middlewares.NewBinder()
	// Error handler
	engine.HTTPErrorHandler = middlewares.HTTPErrorHandler

	engine.Pre(middleware.Rewrite(map[string]string{
		"/": "/version",
	}))

	////////////
	// Router //
	////////////

	router := engine.Group("")
	restricted := router.Group("")
	restricted.Use(middlewares.Authenticate(ctrl.SigningKey))

	// generic handlers
	//
	router.GET("/version", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{
			"version": ctrl.Version,
		})
	})

	//
	// sync handlers
	//
	sync := &syncq{
		queue: ctrl.Queue,
	}
	restricted.POST("/sync/queue", sync.Enqueue)
	restricted.GET("/sync/pending", sync.Pending)
	restricted.POST("/sync/process", sync.Process)
	restricted.GET("/sync/status", sync.Status)
	restricted.POST("/sync/cleanup", sync.Cleanup)

	//
	// blob handlers
	//
	blob := &blobs{
		store: ctrl.Blobs,
	}
	restricted.GET("/blobs/list", blob.List)
	restricted.GET("/blobs/:key", blob.Show)
	restricted.PUT("/blobs/:key", blob.Put)

	//
	// notification handlers
	//
	notification := &notifications{
		registry: ctrl.Notifications,
		upgrader: websocket.Upgrader{
			// Access is granted by the token, not by the origin.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	restricted.GET("/notifications/stream", notification.Stream)
	restricted.GET("/notifications/ws", notification.WebSocket)

	return engine
}

// PrintRoutes prints the Echo engin exposed routes.
func PrintRoutes(e *echo.Echo) {
	ignored := map[string]bool{
		"":   true,
		".":  true,
		"/*": true,
	}

	routes := e.Routes()
	sort.Slice(routes, func(i int, j int) bool {
		return routes[i].Path < routes[j].Path
	})

	fmt.Println("Routes:")
	for _, route := range routes {
		if ignored[route.Path] {
			continue
		}
		fmt.Printf("%6s %s\n", route.Method, route.Path)
	}
}

func streaming(c echo.Context) bool {
	return strings.HasPrefix(c.Path(), "/notifications/")
}

func currentUserID(c echo.Context) string {
	id, _ := c.Get(middlewares.CurrentUserIDContextKey).(string)
	return id
}
