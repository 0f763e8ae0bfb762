package response

import (
	"encoding/json"
	"net/http"
)

// Transport-level result codes. Domain codes come from the service layer.
const (
	CodeSuccess          = 0
	CodeInternalError    = 10000
	CodeUnauthorized     = 10013
	CodeTooManyRequests  = 10014
	CodeServiceDegraded  = 10015
	CodeNotImplemented   = 10016
	CodeResourceNotFound = 10018
	CodeMethodNotAllowed = 10019
)

// Result is the envelope shared by every endpoint. Code 0 means success.
type Result struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data any    `json:"data"`
}

// PageData is the data payload of paged listings.
type PageData struct {
	TotalCount int `json:"totalCount"`
	PageNo     int `json:"pageNo"`
	PageSize   int `json:"pageSize"`
	TotalList  any `json:"totalList"`
}

func JSON(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, Result{Code: CodeSuccess, Msg: "success", Data: data})
}

func Created(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusCreated, Result{Code: CodeSuccess, Msg: "success", Data: data})
}

func Paged(w http.ResponseWriter, page PageData) {
	writeJSON(w, http.StatusOK, Result{Code: CodeSuccess, Msg: "success", Data: page})
}

// Error writes a failed result. data is usually nil.
func Error(w http.ResponseWriter, status, code int, msg string, data any) {
	writeJSON(w, status, Result{Code: code, Msg: msg, Data: data})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
