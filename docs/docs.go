package docs

import "github.com/swaggo/swag"

const docTemplate = `{
  "swagger": "2.0",
  "info": {
    "title": "SOS UNIFIO Dispatch",
    "description": "Campus emergency occurrences, responder call dispatch and realtime notifications",
    "version": "2.1"
  },
  "basePath": "/",
  "tags": [
    {"name": "occurrences"},
    {"name": "calls"},
    {"name": "responders"},
    {"name": "realtime"},
    {"name": "state"}
  ],
  "paths": {}
}`

func init() {
	swag.Register(swag.Name, &s{})
}

type s struct{}

func (s *s) ReadDoc() string {
	return docTemplate
}
