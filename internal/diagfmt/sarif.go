package diagfmt

import (
	"io"
	"diaudit/internal/diag"
	"diaudit/internal/source"
)

// Sarif принимает параметры SARIF-вывода (v2.1.0), но ничего не записывает в w.
func Sarif(w io.Writer, bag *diag.Bag, fs *source.FileSet, meta SarifRunMeta) {
	// TODO: реализовать SARIF форматирование
	_ = w
	_ = bag
	_ = fs
	_ = meta
}
