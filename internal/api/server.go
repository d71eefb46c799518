package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/oapi-codegen/runtime"
)

// ServerInterface は全てのハンドラを表す
type ServerInterface interface {
	// (GET /health)
	HealthCheck(c *gin.Context)
	// (GET /api/status)
	GetStatus(c *gin.Context)
	// (POST /api/stream/start)
	StartStream(c *gin.Context)
	// (POST /api/stream/stop)
	StopStream(c *gin.Context)
	// (POST /api/photo)
	TakePhoto(c *gin.Context)
	// (GET /api/filter)
	GetFilter(c *gin.Context)
	// (PUT /api/filter)
	ReplaceFilter(c *gin.Context)
	// (PUT /api/filter/{channel}/{bound})
	SetFilterBound(c *gin.Context, channel string, bound string)
	// (GET /api/gallery)
	GetGallery(c *gin.Context)
	// (GET /api/gallery/{slot})
	GetGallerySnapshot(c *gin.Context, slot int, params GetGallerySnapshotParams)
	// (GET /api/preview)
	GetPreviewStream(c *gin.Context)
	// (GET /ws/events)
	GetEventsWebSocket(c *gin.Context)
}

// ServerInterfaceWrapper はパラメータを変換してハンドラを呼び出す
type ServerInterfaceWrapper struct {
	Handler            ServerInterface
	HandlerMiddlewares []MiddlewareFunc
	ErrorHandler       func(*gin.Context, error, int)
}

// MiddlewareFunc はハンドラの前に実行されるミドルウェア
type MiddlewareFunc func(c *gin.Context)

// runMiddlewares はミドルウェアを実行し、中断された場合は false を返す
func (siw *ServerInterfaceWrapper) runMiddlewares(c *gin.Context) bool {
	for _, middleware := range siw.HandlerMiddlewares {
		middleware(c)
		if c.IsAborted() {
			return false
		}
	}
	return true
}

// HealthCheck operation middleware
func (siw *ServerInterfaceWrapper) HealthCheck(c *gin.Context) {
	if siw.runMiddlewares(c) {
		siw.Handler.HealthCheck(c)
	}
}

// GetStatus operation middleware
func (siw *ServerInterfaceWrapper) GetStatus(c *gin.Context) {
	if siw.runMiddlewares(c) {
		siw.Handler.GetStatus(c)
	}
}

// StartStream operation middleware
func (siw *ServerInterfaceWrapper) StartStream(c *gin.Context) {
	if siw.runMiddlewares(c) {
		siw.Handler.StartStream(c)
	}
}

// StopStream operation middleware
func (siw *ServerInterfaceWrapper) StopStream(c *gin.Context) {
	if siw.runMiddlewares(c) {
		siw.Handler.StopStream(c)
	}
}

// TakePhoto operation middleware
func (siw *ServerInterfaceWrapper) TakePhoto(c *gin.Context) {
	if siw.runMiddlewares(c) {
		siw.Handler.TakePhoto(c)
	}
}

// GetFilter operation middleware
func (siw *ServerInterfaceWrapper) GetFilter(c *gin.Context) {
	if siw.runMiddlewares(c) {
		siw.Handler.GetFilter(c)
	}
}

// ReplaceFilter operation middleware
func (siw *ServerInterfaceWrapper) ReplaceFilter(c *gin.Context) {
	if siw.runMiddlewares(c) {
		siw.Handler.ReplaceFilter(c)
	}
}

// SetFilterBound operation middleware
func (siw *ServerInterfaceWrapper) SetFilterBound(c *gin.Context) {
	var err error

	// ------------- Path parameter "channel" -------------
	var channel string

	err = runtime.BindStyledParameterWithOptions("simple", "channel", c.Param("channel"), &channel, runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		siw.ErrorHandler(c, fmt.Errorf("パラメータ channel の形式が不正です: %w", err), http.StatusBadRequest)
		return
	}

	// ------------- Path parameter "bound" -------------
	var bound string

	err = runtime.BindStyledParameterWithOptions("simple", "bound", c.Param("bound"), &bound, runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		siw.ErrorHandler(c, fmt.Errorf("パラメータ bound の形式が不正です: %w", err), http.StatusBadRequest)
		return
	}

	if siw.runMiddlewares(c) {
		siw.Handler.SetFilterBound(c, channel, bound)
	}
}

// GetGallery operation middleware
func (siw *ServerInterfaceWrapper) GetGallery(c *gin.Context) {
	if siw.runMiddlewares(c) {
		siw.Handler.GetGallery(c)
	}
}

// GetGallerySnapshot operation middleware
func (siw *ServerInterfaceWrapper) GetGallerySnapshot(c *gin.Context) {
	var err error

	// ------------- Path parameter "slot" -------------
	var slot int

	err = runtime.BindStyledParameterWithOptions("simple", "slot", c.Param("slot"), &slot, runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		siw.ErrorHandler(c, fmt.Errorf("パラメータ slot の形式が不正です: %w", err), http.StatusBadRequest)
		return
	}

	// Parameter object where we will unmarshal all parameters from the context
	var params GetGallerySnapshotParams

	// ------------- Optional query parameter "format" -------------

	err = runtime.BindQueryParameter("form", true, false, "format", c.Request.URL.Query(), &params.Format)
	if err != nil {
		siw.ErrorHandler(c, fmt.Errorf("パラメータ format の形式が不正です: %w", err), http.StatusBadRequest)
		return
	}

	if siw.runMiddlewares(c) {
		siw.Handler.GetGallerySnapshot(c, slot, params)
	}
}

// GetPreviewStream operation middleware
func (siw *ServerInterfaceWrapper) GetPreviewStream(c *gin.Context) {
	if siw.runMiddlewares(c) {
		siw.Handler.GetPreviewStream(c)
	}
}

// GetEventsWebSocket operation middleware
func (siw *ServerInterfaceWrapper) GetEventsWebSocket(c *gin.Context) {
	if siw.runMiddlewares(c) {
		siw.Handler.GetEventsWebSocket(c)
	}
}

// GinServerOptions はルーティングのオプション
type GinServerOptions struct {
	BaseURL      string
	Middlewares  []MiddlewareFunc
	ErrorHandler func(*gin.Context, error, int)
}

// RegisterHandlers はルートを登録する
func RegisterHandlers(router gin.IRouter, si ServerInterface) {
	RegisterHandlersWithOptions(router, si, GinServerOptions{})
}

// RegisterHandlersWithOptions はオプション付きでルートを登録する
func RegisterHandlersWithOptions(router gin.IRouter, si ServerInterface, options GinServerOptions) {
	errorHandler := options.ErrorHandler
	if errorHandler == nil {
		errorHandler = func(c *gin.Context, err error, statusCode int) {
			c.JSON(statusCode, gin.H{"msg": err.Error()})
		}
	}

	wrapper := ServerInterfaceWrapper{
		Handler:            si,
		HandlerMiddlewares: options.Middlewares,
		ErrorHandler:       errorHandler,
	}

	router.GET(options.BaseURL+"/health", wrapper.HealthCheck)
	router.GET(options.BaseURL+"/api/status", wrapper.GetStatus)
	router.POST(options.BaseURL+"/api/stream/start", wrapper.StartStream)
	router.POST(options.BaseURL+"/api/stream/stop", wrapper.StopStream)
	router.POST(options.BaseURL+"/api/photo", wrapper.TakePhoto)
	router.GET(options.BaseURL+"/api/filter", wrapper.GetFilter)
	router.PUT(options.BaseURL+"/api/filter", wrapper.ReplaceFilter)
	router.PUT(options.BaseURL+"/api/filter/:channel/:bound", wrapper.SetFilterBound)
	router.GET(options.BaseURL+"/api/gallery", wrapper.GetGallery)
	router.GET(options.BaseURL+"/api/gallery/:slot", wrapper.GetGallerySnapshot)
	router.GET(options.BaseURL+"/api/preview", wrapper.GetPreviewStream)
	router.GET(options.BaseURL+"/ws/events", wrapper.GetEventsWebSocket)
}
