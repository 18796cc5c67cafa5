package utils

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/iancoleman/orderedmap"
	"github.com/jedib0t/go-pretty/v6/table"
)

/**
 * Convert a struct to an ordered map keyed by its json tags
 * @param {interface{}} v - Struct value (or pointer) to convert
 * @returns {*orderedmap.OrderedMap} Fields in declaration order
 * @returns {error} Marshal error
 */
func StructToOrderedMap(v interface{}) (*orderedmap.OrderedMap, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	m := orderedmap.New()
	if err := json.Unmarshal(data, m); err != nil {
		return nil, err
	}
	return m, nil
}

// PrintFormat 以表格形式输出到标准输出，表头取第一行的键
func PrintFormat(rows []*orderedmap.OrderedMap) {
	WriteFormat(os.Stdout, rows)
}

/**
 * Render ordered maps as a table
 * @param {io.Writer} w - Output
 * @param {[]*orderedmap.OrderedMap} rows - Rows sharing the same keys
 * @description
 * - Prints "No data" when rows is empty
 * - Slices and maps are rendered as compact JSON
 */
func WriteFormat(w io.Writer, rows []*orderedmap.OrderedMap) {
	if len(rows) == 0 {
		fmt.Fprintln(w, "No data")
		return
	}
	keys := rows[0].Keys()

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)

	header := make(table.Row, 0, len(keys))
	for _, k := range keys {
		header = append(header, k)
	}
	t.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, 0, len(keys))
		for _, k := range keys {
			v, _ := row.Get(k)
			r = append(r, cell(v))
		}
		t.AppendRow(r)
	}
	t.Render()
}

func cell(v interface{}) interface{} {
	switch val := v.(type) {
	case nil:
		return ""
	case []interface{}, map[string]interface{}, orderedmap.OrderedMap:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(data)
	default:
		return val
	}
}
