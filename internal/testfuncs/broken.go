package testfuncs

import (
	"github.com/watzon/alyx-worker/pkg/fn"
)

func registerBroken(c *fn.Catalog) {
	c.Register("missing_go_param/main.go", "Main", func() string { return "" }, fn.Params())
	c.Register("missing_json_param/main.go", "Main",
		func(req *fn.HTTPRequest, spam string) string { return "" },
		fn.Params("req", "spam"))
	c.Register("wrong_param_dir/main.go", "Main",
		func(req *fn.HTTPRequest, foo *fn.HTTPResponse) {},
		fn.Params("req", "foo"))
	c.Register("wrong_binding_dir/main.go", "Main",
		func(req *fn.HTTPRequest, foo *fn.Out[*fn.HTTPResponse]) {},
		fn.Params("req", "foo"))
	c.Register("invalid_context_param/main.go", "Main",
		func(context string, req *fn.HTTPRequest) string { return "" },
		fn.Params("context", "req"))
	c.Register("inout_param/main.go", "Main",
		func(req *fn.HTTPRequest, foo *fn.Out[*fn.HTTPResponse]) {},
		fn.Params("req", "foo"))
	c.Register("return_param_in/main.go", "Main",
		func(req *fn.HTTPRequest) string { return "" },
		fn.Params("req"))
	c.Register("invalid_return_anno/main.go", "Main",
		func(req *fn.HTTPRequest) int { return 0 },
		fn.Params("req"))
	c.Register("invalid_return_anno_non_type/main.go", "Main",
		func(req *fn.HTTPRequest) any { return nil },
		fn.Params("req"), fn.AnnotateReturn(123))
	c.Register("invalid_http_trigger_anno/main.go", "Main",
		func(req int) string { return "" },
		fn.Params("req"))
	c.Register("invalid_out_anno/main.go", "Main",
		func(req *fn.HTTPRequest, ret *fn.Out[float64]) {},
		fn.Params("req", "ret"))
	c.Register("invalid_in_anno/main.go", "Main",
		func(req *fn.HTTPResponse) string { return "" },
		fn.Params("req"))
	c.Register("invalid_in_anno_non_type/main.go", "Main",
		func(req any) string { return "" },
		fn.Params("req"), fn.Annotate("req", 123))
	c.Register("unsupported_bind_type/main.go", "Main",
		func(req *fn.HTTPRequest, ret *fn.Out[[]byte]) {},
		fn.Params("req", "ret"))
	c.Register("unsupported_ret_type/main.go", "Main",
		func(req *fn.HTTPRequest) string { return "" },
		fn.Params("req"))
	c.Register("bad_result_shape/main.go", "Main",
		func(req *fn.HTTPRequest) (string, string) { return "", "" },
		fn.Params("req"))
}
