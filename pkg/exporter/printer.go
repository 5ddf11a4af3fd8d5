package exporter

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"archvault/pkg/core"
)

// PrintObject 以人类可读的方式展示一个结构化对象
// BLOB 只打印元数据，原始字节用 WriteStream 导出
func PrintObject(obj core.Object, w io.Writer) error {
	switch o := obj.(type) {
	case *core.Blob:
		fmt.Fprintf(w, "Type: BLOB\n")
		fmt.Fprintf(w, "Hash: %s\n", o.ID())
		fmt.Fprintf(w, "Size: %s\n", fmtSize(o.Size()))
		return nil
	case *core.List:
		return printList(o, w)
	case *core.Tree:
		return printTree(o, w)
	default:
		return fmt.Errorf("unknown object type: %T", obj)
	}
}

func printList(l *core.List, w io.Writer) error {
	fmt.Fprintf(w, "Type: LIST\n")
	fmt.Fprintf(w, "Hash: %s\n\n", l.ID())

	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	fmt.Fprintf(tw, "#\tTYPE\tHASH\tSIZE\n")
	for i, link := range l.Links() {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", i, link.Type, link.Hash, fmtSize(link.Size))
	}
	return tw.Flush()
}

func printTree(t *core.Tree, w io.Writer) error {
	fmt.Fprintf(w, "Type: TREE\n")
	fmt.Fprintf(w, "Hash: %s\n\n", t.ID())

	// 模拟 git ls-tree 的输出格式
	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	fmt.Fprintf(tw, "TYPE\tHASH\tSIZE\tNAME\n")
	for _, name := range t.Names() {
		link, _ := t.Get(name)
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", link.Type, link.Hash.Short(), fmtSize(link.Size), name)
	}
	return tw.Flush()
}

// PrintEntries 打印 Entry 列表 (ls 命令)
func PrintEntries(entries []core.Entry, w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	fmt.Fprintf(tw, "NAME\tTYPE\tROOT\tCREATED\n")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.Name, e.Root.Type, e.Root.Hash.Short(), e.CTime.Local().Format(time.DateTime))
	}
	return tw.Flush()
}

func fmtSize(s int64) string {
	if s < 1024 {
		return fmt.Sprintf("%dB", s)
	} else if s < 1024*1024 {
		return fmt.Sprintf("%.1fKB", float64(s)/1024)
	}
	return fmt.Sprintf("%.2fMB", float64(s)/1024/1024)
}
