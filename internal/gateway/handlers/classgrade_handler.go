// ============================================================================
// internal/gateway/handlers/classgrade_handler.go
// Gradebook endpoints: columns, rows, finish flag, import/export, stats
// ============================================================================

package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/Dqvinh20/awp-go-be/internal/class"
	"github.com/Dqvinh20/awp-go-be/internal/classgrade"
	"github.com/Dqvinh20/awp-go-be/internal/gateway/util"
	"github.com/Dqvinh20/awp-go-be/internal/notification"
)

// ClassGradeHandler serves every gradebook endpoint
type ClassGradeHandler struct {
	gradeService        *classgrade.Service
	classService        *class.Service
	notificationService *notification.Service
	maxImportSize       int64
}

// NewClassGradeHandler creates a new gradebook handler
func NewClassGradeHandler(
	gradeService *classgrade.Service,
	classService *class.Service,
	notificationService *notification.Service,
	maxImportSize int64,
) *ClassGradeHandler {
	return &ClassGradeHandler{
		gradeService:        gradeService,
		classService:        classService,
		notificationService: notificationService,
		maxImportSize:       maxImportSize,
	}
}

func classIDParam(r *http.Request) (primitive.ObjectID, error) {
	return primitive.ObjectIDFromHex(chi.URLParam(r, "class_id"))
}

// requireTeacher verifies teacher membership before a mutating call
func (h *ClassGradeHandler) requireTeacher(w http.ResponseWriter, r *http.Request) (primitive.ObjectID, bool) {
	classID, err := classIDParam(r)
	if err != nil {
		util.WriteJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid class id")
		return primitive.NilObjectID, false
	}
	if err := h.gradeService.IsTeacherOf(r.Context(), classID, CurrentUser(r).ID); err != nil {
		util.HandleServiceError(w, err)
		return primitive.NilObjectID, false
	}
	return classID, true
}

// ============================================================================
// Views
// ============================================================================

// Get handles GET /api/class-grades/{class_id}. Teachers get the full board,
// students get their own row once the book is finished.
func (h *ClassGradeHandler) Get(w http.ResponseWriter, r *http.Request) {
	classID, err := classIDParam(r)
	if err != nil {
		util.WriteJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid class id")
		return
	}

	user := CurrentUser(r)
	teacherErr := h.gradeService.IsTeacherOf(r.Context(), classID, user.ID)
	if teacherErr == nil {
		doc, err := h.gradeService.FindByClassID(r.Context(), classID)
		if err != nil {
			util.HandleServiceError(w, err)
			return
		}
		util.WriteJSON(w, http.StatusOK, doc)
		return
	}
	if !errors.Is(teacherErr, classgrade.ErrNotClassTeacher) {
		util.HandleServiceError(w, teacherErr)
		return
	}

	if err := h.gradeService.IsStudentOf(r.Context(), classID, user.ID); err != nil {
		util.HandleServiceError(w, err)
		return
	}
	doc, err := h.gradeService.FindForStudent(r.Context(), classID, user)
	if err != nil {
		util.HandleServiceError(w, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, doc)
}

// GetColumns handles GET /api/class-grades/{class_id}/columns
func (h *ClassGradeHandler) GetColumns(w http.ResponseWriter, r *http.Request) {
	classID, err := classIDParam(r)
	if err != nil {
		util.WriteJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid class id")
		return
	}

	user := CurrentUser(r)
	if err := h.gradeService.IsTeacherOf(r.Context(), classID, user.ID); err != nil {
		if !errors.Is(err, classgrade.ErrNotClassTeacher) {
			util.HandleServiceError(w, err)
			return
		}
		if err := h.gradeService.IsStudentOf(r.Context(), classID, user.ID); err != nil {
			util.HandleServiceError(w, err)
			return
		}
	}

	doc, err := h.gradeService.FindByClassID(r.Context(), classID)
	if err != nil {
		util.HandleServiceError(w, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, doc.GradeColumns)
}

// Stats handles GET /api/class-grades/{class_id}/stats
func (h *ClassGradeHandler) Stats(w http.ResponseWriter, r *http.Request) {
	classID, ok := h.requireTeacher(w, r)
	if !ok {
		return
	}

	entries, err := h.gradeService.ColumnStats(r.Context(), classID)
	if err != nil {
		util.HandleServiceError(w, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, entries)
}

// ============================================================================
// Columns and Rows
// ============================================================================

type replaceColumnsRequest struct {
	Columns []classgrade.ColumnInput `json:"columns" validate:"dive"`
}

// ReplaceColumns handles POST /api/class-grades/{class_id}/columns
func (h *ClassGradeHandler) ReplaceColumns(w http.ResponseWriter, r *http.Request) {
	classID, ok := h.requireTeacher(w, r)
	if !ok {
		return
	}

	var req replaceColumnsRequest
	if err := util.DecodeAndValidate(r, &req); err != nil {
		util.WriteJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}

	doc, err := h.gradeService.ReplaceColumnSet(r.Context(), classID, req.Columns)
	if err != nil {
		util.HandleServiceError(w, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, doc)
}

type gradeRowRequest struct {
	StudentID string             `json:"student_id" validate:"required"`
	FullName  string             `json:"full_name"`
	Grades    map[string]float64 `json:"grades"`
}

type updateRowsRequest struct {
	Rows []gradeRowRequest `json:"rows" validate:"required,min=1,dive"`
}

// UpdateRows handles PATCH /api/class-grades/{class_id}/rows. Rows are
// applied independently; the response reports the aggregate outcome.
func (h *ClassGradeHandler) UpdateRows(w http.ResponseWriter, r *http.Request) {
	classID, ok := h.requireTeacher(w, r)
	if !ok {
		return
	}

	var req updateRowsRequest
	if err := util.DecodeAndValidate(r, &req); err != nil {
		util.WriteJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}

	updates := make([]classgrade.RowUpdate, len(req.Rows))
	for i, row := range req.Rows {
		updates[i] = classgrade.RowUpdate{
			StudentID: row.StudentID,
			FullName:  row.FullName,
			Grades:    row.Grades,
		}
	}

	outcome, err := h.gradeService.UpdateManyGrades(r.Context(), classID, updates)
	if err != nil {
		util.HandleServiceError(w, err)
		return
	}

	status := http.StatusOK
	if !outcome.AllSucceeded() {
		status = http.StatusMultiStatus
	}
	util.WriteJSON(w, status, outcome)
}

// RemoveRow handles DELETE /api/class-grades/{class_id}/rows/{row_id}
func (h *ClassGradeHandler) RemoveRow(w http.ResponseWriter, r *http.Request) {
	classID, ok := h.requireTeacher(w, r)
	if !ok {
		return
	}

	rowID, err := primitive.ObjectIDFromHex(chi.URLParam(r, "row_id"))
	if err != nil {
		util.WriteJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid row id")
		return
	}

	doc, err := h.gradeService.RemoveGradeRow(r.Context(), classID, rowID)
	if err != nil {
		util.HandleServiceError(w, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, doc)
}

// ============================================================================
// Finished Flag
// ============================================================================

// Finish handles PATCH /api/class-grades/{class_id}/finish
func (h *ClassGradeHandler) Finish(w http.ResponseWriter, r *http.Request) {
	classID, ok := h.requireTeacher(w, r)
	if !ok {
		return
	}

	effect, err := h.gradeService.MarkFinished(r.Context(), classID)
	if err != nil {
		util.HandleServiceError(w, err)
		return
	}
	if err := h.notificationService.ApplyGradeEffect(r.Context(), effect); err != nil {
		// The flag is already flipped; notification failure is not fatal
		util.WriteJSON(w, http.StatusOK, map[string]string{
			"message": "Grade board finished, but notifying students failed",
		})
		return
	}
	util.WriteJSON(w, http.StatusOK, map[string]string{"message": "Grade board finished"})
}

// Unfinish handles PATCH /api/class-grades/{class_id}/unfinish
func (h *ClassGradeHandler) Unfinish(w http.ResponseWriter, r *http.Request) {
	classID, ok := h.requireTeacher(w, r)
	if !ok {
		return
	}

	effect, err := h.gradeService.MarkUnfinished(r.Context(), classID)
	if err != nil {
		util.HandleServiceError(w, err)
		return
	}
	_ = h.notificationService.ApplyGradeEffect(r.Context(), effect)
	util.WriteJSON(w, http.StatusOK, map[string]string{"message": "Grade board reopened"})
}

// ============================================================================
// Export
// ============================================================================

func writeExport(w http.ResponseWriter, file *classgrade.ExportFile) {
	w.Header().Set("Content-Type", file.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Name))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(file.Data); err != nil {
		// Response already started, nothing else to do
		return
	}
}

// ExportBoard handles GET /api/class-grades/{class_id}/export
func (h *ClassGradeHandler) ExportBoard(w http.ResponseWriter, r *http.Request) {
	classID, ok := h.requireTeacher(w, r)
	if !ok {
		return
	}

	ft, err := classgrade.ParseFileType(r.URL.Query().Get("file_type"))
	if err != nil {
		util.HandleServiceError(w, err)
		return
	}

	classDetail, err := h.classService.FindByID(r.Context(), classID)
	if err != nil {
		util.HandleServiceError(w, err)
		return
	}

	file, err := h.gradeService.ExportGradeBoard(r.Context(), classID, classDetail.Name, ft)
	if err != nil {
		util.HandleServiceError(w, err)
		return
	}
	writeExport(w, file)
}

// ExportTemplate handles GET /api/class-grades/{class_id}/template
func (h *ClassGradeHandler) ExportTemplate(w http.ResponseWriter, r *http.Request) {
	classID, ok := h.requireTeacher(w, r)
	if !ok {
		return
	}

	ft, err := classgrade.ParseFileType(r.URL.Query().Get("file_type"))
	if err != nil {
		util.HandleServiceError(w, err)
		return
	}

	file, err := h.gradeService.ExportStudentListTemplate(r.Context(), classID, ft)
	if err != nil {
		util.HandleServiceError(w, err)
		return
	}
	writeExport(w, file)
}

// ExportColumnTemplate handles GET /api/class-grades/{class_id}/template/{column_id}
func (h *ClassGradeHandler) ExportColumnTemplate(w http.ResponseWriter, r *http.Request) {
	classID, ok := h.requireTeacher(w, r)
	if !ok {
		return
	}

	columnID, err := primitive.ObjectIDFromHex(chi.URLParam(r, "column_id"))
	if err != nil {
		util.WriteJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid column id")
		return
	}

	ft, err := classgrade.ParseFileType(r.URL.Query().Get("file_type"))
	if err != nil {
		util.HandleServiceError(w, err)
		return
	}

	file, err := h.gradeService.ExportOneColumnTemplate(r.Context(), classID, columnID, ft)
	if err != nil {
		util.HandleServiceError(w, err)
		return
	}
	writeExport(w, file)
}

// ============================================================================
// Import
// ============================================================================

// readUpload pulls the uploaded sheet out of the multipart form, enforcing
// the size cap and the extension filter before any parsing happens.
func (h *ClassGradeHandler) readUpload(w http.ResponseWriter, r *http.Request) ([]byte, classgrade.FileType, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxImportSize)
	if err := r.ParseMultipartForm(h.maxImportSize); err != nil {
		util.WriteJSONError(w, http.StatusBadRequest, "Bad Request",
			fmt.Sprintf("File too large. Max file size %dKB", h.maxImportSize/1000))
		return nil, "", false
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		util.WriteJSONError(w, http.StatusBadRequest, "Bad Request", "Missing file upload")
		return nil, "", false
	}
	defer file.Close()

	var ft classgrade.FileType
	switch strings.ToLower(filepath.Ext(header.Filename)) {
	case ".csv":
		ft = classgrade.FileTypeCSV
	case ".xlsx":
		ft = classgrade.FileTypeXLSX
	default:
		util.HandleServiceError(w, classgrade.ErrUnsupportedFileType)
		return nil, "", false
	}

	data, err := io.ReadAll(file)
	if err != nil {
		util.WriteJSONError(w, http.StatusBadRequest, "Bad Request", "Failed to read file upload")
		return nil, "", false
	}
	return data, ft, true
}

// ImportBoard handles POST /api/class-grades/{class_id}/import
func (h *ClassGradeHandler) ImportBoard(w http.ResponseWriter, r *http.Request) {
	classID, ok := h.requireTeacher(w, r)
	if !ok {
		return
	}

	data, ft, ok := h.readUpload(w, r)
	if !ok {
		return
	}

	doc, err := h.gradeService.ImportGradeTable(r.Context(), classID, data, ft)
	if err != nil {
		util.HandleServiceError(w, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, doc)
}

// ImportColumn handles POST /api/class-grades/{class_id}/import/{column_id}
func (h *ClassGradeHandler) ImportColumn(w http.ResponseWriter, r *http.Request) {
	classID, ok := h.requireTeacher(w, r)
	if !ok {
		return
	}

	columnID, err := primitive.ObjectIDFromHex(chi.URLParam(r, "column_id"))
	if err != nil {
		util.WriteJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid column id")
		return
	}

	data, ft, ok := h.readUpload(w, r)
	if !ok {
		return
	}

	doc, err := h.gradeService.ImportOneColumn(r.Context(), classID, columnID, data, ft)
	if err != nil {
		util.HandleServiceError(w, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, doc)
}
