// Command hydralog-dump prints hydralog files as plain TSV or JSON lines,
// merging multiple inputs by timestamp.
//
// Usage:
//
//	hydralog-dump [-f FIELDS] [-o tsv|json] FILE [FILE...]
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/valyala/fastjson"
	"go.uber.org/zap"

	"github.com/hydralog/hydralog"
	"github.com/hydralog/hydralog/logfile"
)

// recordSource is the common surface of Reader and MergeReader.
type recordSource interface {
	Next() (*logfile.Record, error)
}

func main() {
	fieldsFlag := flag.String("f", "", "comma-separated fields to output (default: all)")
	outFlag := flag.String("o", "tsv", "output format: tsv or json")
	flag.Parse()

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: hydralog-dump [-f FIELDS] [-o tsv|json] FILE [FILE...]")
		os.Exit(2)
	}
	if *outFlag != "tsv" && *outFlag != "json" {
		logger.Error("unknown output format", zap.String("format", *outFlag))
		os.Exit(2)
	}

	var fields []string
	if *fieldsFlag != "" {
		fields = strings.Split(*fieldsFlag, ",")
	}

	readers := make([]*logfile.Reader, 0, flag.NArg())
	for _, path := range flag.Args() {
		r, err := hydralog.Open(path)
		if err != nil {
			logger.Error("opening input", zap.String("path", path), zap.Error(err))
			os.Exit(1)
		}
		defer r.Close()
		readers = append(readers, r)
	}

	var src recordSource
	if len(readers) == 1 {
		src = readers[0]
	} else {
		m, err := hydralog.Merge(readers...)
		if err != nil {
			logger.Error("building merge", zap.Error(err))
			os.Exit(1)
		}
		src = m
	}

	out := bufio.NewWriter(os.Stdout)
	if err := dump(out, src, fields, *outFlag == "json"); err != nil {
		logger.Error("dumping records", zap.Error(err))
		os.Exit(1)
	}
	if err := out.Flush(); err != nil {
		logger.Error("flushing output", zap.Error(err))
		os.Exit(1)
	}
}

func dump(out *bufio.Writer, src recordSource, fields []string, asJSON bool) error {
	var arena fastjson.Arena
	for {
		rec, err := src.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		names := fields
		if names == nil {
			names = append([]string{"timestamp"}, rec.FieldNames()...)
		}

		if asJSON {
			if err := writeJSON(out, &arena, rec, names); err != nil {
				return err
			}
			arena.Reset()
			continue
		}
		if err := writeTSV(out, rec, names); err != nil {
			return err
		}
	}
}

func writeTSV(out *bufio.Writer, rec *logfile.Record, names []string) error {
	for i, name := range names {
		if i > 0 {
			out.WriteByte('\t')
		}
		out.WriteString(fieldValue(rec, name))
	}

	return out.WriteByte('\n')
}

func writeJSON(out *bufio.Writer, arena *fastjson.Arena, rec *logfile.Record, names []string) error {
	obj := arena.NewObject()
	for _, name := range names {
		if name == "timestamp" {
			obj.Set(name, arena.NewNumberFloat64(rec.Timestamp()))
			continue
		}
		if !rec.Has(name) {
			continue
		}
		v, err := rec.Field(name)
		if err != nil {
			return err
		}
		obj.Set(name, arena.NewString(v))
	}
	out.Write(obj.MarshalTo(nil))

	return out.WriteByte('\n')
}

func fieldValue(rec *logfile.Record, name string) string {
	if name == "timestamp" {
		return strconv.FormatFloat(rec.Timestamp(), 'f', -1, 64)
	}
	if !rec.Has(name) {
		return ""
	}
	v, _ := rec.Field(name)

	return strings.ReplaceAll(v, "\n", " ")
}
