package api

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/camvault/camvault/internal/datastore"
	"github.com/camvault/camvault/internal/errors"
	"github.com/camvault/camvault/internal/pipeline"
	"github.com/camvault/camvault/internal/resolver"
)

// initCameraRoutes registers the camera inventory endpoints.
func (c *Controller) initCameraRoutes() {
	c.Group.GET("/cameras", c.ListCameras)
	c.Group.POST("/cameras", c.CreateCamera)
	c.Group.GET("/cameras/:id", c.GetCamera)
	c.Group.PUT("/cameras/:id", c.UpdateCamera)
	c.Group.DELETE("/cameras/:id", c.DeleteCamera)
	c.Group.GET("/cameras/summary", c.CameraSummary)
	c.Group.GET("/cameras/export", c.ExportCamerasCSV)
	c.Group.POST("/cameras/import", c.ImportCamerasCSV)
}

// CameraRequest is the JSON body for creating or updating a camera.
type CameraRequest struct {
	Brand        string `json:"brand"`
	Model        string `json:"model"`
	SerialNumber string `json:"serial_number"`
	Type         string `json:"type"`
	Year         int    `json:"year"`
	FilmFormat   string `json:"film_format"`
	Notes        string `json:"notes"`
	ImageURL     string `json:"image_url"`
	ImageURL2    string `json:"image_url_2"`
}

// CameraResponse is a camera record with its resolved display image.
type CameraResponse struct {
	datastore.Camera
	Image pipelineImage `json:"image"`
}

type pipelineImage = resolver.Resolved

// toResponse attaches the resolved image to a camera record.
func (c *Controller) toResponse(camera *datastore.Camera) CameraResponse {
	return CameraResponse{
		Camera: *camera,
		Image:  c.Resolver.Resolve(camera),
	}
}

// ListCameras returns a page of cameras with resolved images.
func (c *Controller) ListCameras(ctx echo.Context) error {
	limit := queryInt(ctx, "limit", 50)
	if limit < 1 || limit > 500 {
		limit = 50
	}
	offset := queryInt(ctx, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	cameras, total, err := c.DS.ListCameras(limit, offset)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to list cameras", http.StatusInternalServerError)
	}

	responses := make([]CameraResponse, 0, len(cameras))
	for i := range cameras {
		responses = append(responses, c.toResponse(&cameras[i]))
	}
	return ctx.JSON(http.StatusOK, map[string]any{
		"cameras": responses,
		"total":   total,
		"limit":   limit,
		"offset":  offset,
	})
}

// GetCamera returns one camera with its resolved image.
func (c *Controller) GetCamera(ctx echo.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid camera ID", http.StatusBadRequest)
	}

	camera, err := c.DS.GetCamera(id)
	if err != nil {
		if errors.IsNotFound(err) {
			return c.HandleError(ctx, err, "Camera not found", http.StatusNotFound)
		}
		return c.HandleError(ctx, err, "Failed to load camera", http.StatusInternalServerError)
	}
	return ctx.JSON(http.StatusOK, c.toResponse(camera))
}

// CreateCamera stores a new camera and schedules a default-image fetch when
// the camera arrives without user images.
func (c *Controller) CreateCamera(ctx echo.Context) error {
	var req CameraRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, err, "Invalid request body", http.StatusBadRequest)
	}
	if strings.TrimSpace(req.Brand) == "" {
		return c.HandleError(ctx, errors.Validation("brand is required"),
			"Brand is required", http.StatusBadRequest)
	}

	camera := cameraFromRequest(&req)
	if err := c.DS.SaveCamera(camera); err != nil {
		return c.HandleError(ctx, err, "Failed to save camera", http.StatusInternalServerError)
	}

	schedule, err := c.Scheduler.ScheduleDefaultImageFetch(pipeline.ScheduleRequest{
		CameraID:      camera.ID,
		Brand:         camera.Brand,
		Model:         camera.Model,
		HasUserImages: camera.HasUserImages(),
	})
	if err != nil {
		// The camera is stored; a scheduling failure must not fail the create.
		c.logger.Warn("Failed to schedule default image fetch",
			"camera_id", camera.ID, "error", err)
	}

	return ctx.JSON(http.StatusCreated, map[string]any{
		"camera":   c.toResponse(camera),
		"schedule": schedule,
	})
}

// UpdateCamera modifies an existing camera.
func (c *Controller) UpdateCamera(ctx echo.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid camera ID", http.StatusBadRequest)
	}

	camera, err := c.DS.GetCamera(id)
	if err != nil {
		if errors.IsNotFound(err) {
			return c.HandleError(ctx, err, "Camera not found", http.StatusNotFound)
		}
		return c.HandleError(ctx, err, "Failed to load camera", http.StatusInternalServerError)
	}

	var req CameraRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, err, "Invalid request body", http.StatusBadRequest)
	}

	updated := cameraFromRequest(&req)
	updated.ID = camera.ID
	updated.CreatedAt = camera.CreatedAt
	if err := c.DS.UpdateCamera(updated); err != nil {
		return c.HandleError(ctx, err, "Failed to update camera", http.StatusInternalServerError)
	}
	return ctx.JSON(http.StatusOK, c.toResponse(updated))
}

// DeleteCamera removes a camera record.
func (c *Controller) DeleteCamera(ctx echo.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid camera ID", http.StatusBadRequest)
	}

	if err := c.DS.DeleteCamera(id); err != nil {
		if errors.IsNotFound(err) {
			return c.HandleError(ctx, err, "Camera not found", http.StatusNotFound)
		}
		return c.HandleError(ctx, err, "Failed to delete camera", http.StatusInternalServerError)
	}
	return ctx.NoContent(http.StatusNoContent)
}

// CameraSummary aggregates inventory counts by brand and type.
func (c *Controller) CameraSummary(ctx echo.Context) error {
	byBrand, err := c.DS.CountCamerasByBrand()
	if err != nil {
		return c.HandleError(ctx, err, "Failed to aggregate by brand", http.StatusInternalServerError)
	}
	byType, err := c.DS.CountCamerasByType()
	if err != nil {
		return c.HandleError(ctx, err, "Failed to aggregate by type", http.StatusInternalServerError)
	}
	byDecade, err := c.DS.CountCamerasByDecade()
	if err != nil {
		return c.HandleError(ctx, err, "Failed to aggregate by decade", http.StatusInternalServerError)
	}

	total := int64(0)
	for _, b := range byBrand {
		total += b.Count
	}
	return ctx.JSON(http.StatusOK, map[string]any{
		"total":     total,
		"by_brand":  byBrand,
		"by_type":   byType,
		"by_decade": byDecade,
	})
}

// csvHeader is the column layout for camera CSV import and export.
var csvHeader = []string{"brand", "model", "serial_number", "type", "year", "film_format", "notes"}

// ExportCamerasCSV streams the whole inventory as CSV.
func (c *Controller) ExportCamerasCSV(ctx echo.Context) error {
	const pageSize = 500

	ctx.Response().Header().Set(echo.HeaderContentType, "text/csv")
	ctx.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="cameras.csv"`)
	ctx.Response().WriteHeader(http.StatusOK)

	writer := csv.NewWriter(ctx.Response())
	if err := writer.Write(csvHeader); err != nil {
		return err
	}

	for offset := 0; ; offset += pageSize {
		cameras, total, err := c.DS.ListCameras(pageSize, offset)
		if err != nil {
			return err
		}
		for i := range cameras {
			camera := &cameras[i]
			record := []string{
				camera.Brand, camera.Model, camera.SerialNumber, camera.Type,
				yearString(camera.Year), camera.FilmFormat, camera.Notes,
			}
			if err := writer.Write(record); err != nil {
				return err
			}
		}
		if int64(offset+pageSize) >= total || len(cameras) == 0 {
			break
		}
	}
	writer.Flush()
	return writer.Error()
}

// ImportCamerasCSV ingests a CSV upload, skipping malformed rows and
// reporting a per-row breakdown. Default-image fetches are scheduled for
// every imported camera.
func (c *Controller) ImportCamerasCSV(ctx echo.Context) error {
	file, err := ctx.FormFile("file")
	if err != nil {
		return c.HandleError(ctx, err, "CSV file upload required (field: file)", http.StatusBadRequest)
	}
	src, err := file.Open()
	if err != nil {
		return c.HandleError(ctx, err, "Failed to open upload", http.StatusBadRequest)
	}
	defer func() {
		if closeErr := src.Close(); closeErr != nil {
			c.logger.Debug("Failed to close upload", "error", closeErr)
		}
	}()

	reader := csv.NewReader(src)
	reader.FieldsPerRecord = -1

	rows, err := reader.ReadAll()
	if err != nil {
		return c.HandleError(ctx, err, "Malformed CSV", http.StatusBadRequest)
	}
	if len(rows) == 0 {
		return c.HandleError(ctx, errors.Validation("empty CSV"), "Empty CSV", http.StatusBadRequest)
	}

	start := 0
	if isHeaderRow(rows[0]) {
		start = 1
	}

	imported, skipped := 0, 0
	var rowErrors []string
	for i, row := range rows[start:] {
		camera, err := cameraFromCSVRow(row)
		if err != nil {
			skipped++
			rowErrors = append(rowErrors, fmt.Sprintf("row %d: %v", start+i+1, err))
			continue
		}
		if err := c.DS.SaveCamera(camera); err != nil {
			skipped++
			rowErrors = append(rowErrors, fmt.Sprintf("row %d: %v", start+i+1, err))
			continue
		}
		imported++

		if _, err := c.Scheduler.ScheduleDefaultImageFetch(pipeline.ScheduleRequest{
			CameraID: camera.ID, Brand: camera.Brand, Model: camera.Model,
		}); err != nil {
			c.logger.Warn("Failed to schedule fetch for imported camera",
				"camera_id", camera.ID, "error", err)
		}
	}

	response := map[string]any{"imported": imported, "skipped": skipped}
	if len(rowErrors) > 0 {
		// Bound the error list the same way the attribution report bounds
		// its issues.
		if len(rowErrors) > 5 {
			rowErrors = rowErrors[:5]
		}
		response["errors"] = rowErrors
	}
	return ctx.JSON(http.StatusOK, response)
}

func cameraFromRequest(req *CameraRequest) *datastore.Camera {
	return &datastore.Camera{
		Brand:        strings.TrimSpace(req.Brand),
		Model:        strings.TrimSpace(req.Model),
		SerialNumber: strings.TrimSpace(req.SerialNumber),
		Type:         strings.TrimSpace(req.Type),
		Year:         req.Year,
		FilmFormat:   strings.TrimSpace(req.FilmFormat),
		Notes:        req.Notes,
		ImageURL:     strings.TrimSpace(req.ImageURL),
		ImageURL2:    strings.TrimSpace(req.ImageURL2),
	}
}

func cameraFromCSVRow(row []string) (*datastore.Camera, error) {
	if len(row) < 2 {
		return nil, errors.Validation("need at least brand and model columns")
	}
	get := func(i int) string {
		if i < len(row) {
			return strings.TrimSpace(row[i])
		}
		return ""
	}

	brand, model := get(0), get(1)
	if brand == "" {
		return nil, errors.Validation("brand is required")
	}

	year := 0
	if y := get(4); y != "" {
		parsed, err := strconv.Atoi(y)
		if err != nil {
			return nil, errors.Validation("year must be numeric")
		}
		year = parsed
	}

	return &datastore.Camera{
		Brand:        brand,
		Model:        model,
		SerialNumber: get(2),
		Type:         get(3),
		Year:         year,
		FilmFormat:   get(5),
		Notes:        get(6),
	}, nil
}

func isHeaderRow(row []string) bool {
	return len(row) > 0 && strings.EqualFold(strings.TrimSpace(row[0]), "brand")
}

func yearString(year int) string {
	if year == 0 {
		return ""
	}
	return strconv.Itoa(year)
}

func pathID(ctx echo.Context) (uint, error) {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 32)
	if err != nil {
		return 0, errors.Validation("id must be a positive integer")
	}
	return uint(id), nil
}

func queryInt(ctx echo.Context, name string, fallback int) int {
	raw := ctx.QueryParam(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
