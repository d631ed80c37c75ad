package app

import _ "embed"

//go:embed assets/openapi.json
var openAPIDoc []byte

//go:embed assets/demo.html
var demoPage []byte
