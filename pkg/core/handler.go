package core

import "github.com/bodylog/bodylog/pkg/record"

// Handler receives one record per observed request and response. Handler
// errors never fail the request being served.
type Handler interface {
	HandleRequest(req *record.Request) error
	HandleResponse(res *record.Response) error
}
