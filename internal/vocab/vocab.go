package vocab

// CatchAll 是兜底类别（"NONE" 与所有未识别字符串）的下标。
const CatchAll = 25

// NoneLabel 是空 token 在分类流中对应的类别名。
const NoneLabel = "NONE"

// labels 是固定枚举：下标即混淆矩阵的行/列号。
//
// 约束：顺序必须与矩阵的生产方/消费方保持一致，只允许在末尾追加（并同步调整 CatchAll）。
var labels = [...]string{
	"RBC", "DRBC", "RBCC", "WBC", "WBCC",
	"BACT", "SQEP", "NSE", "TREP", "REEP",
	"CAOX", "URIC", "TPO4", "CAPH", "CYST",
	"LEUC", "AMOR", "CELL", "GRAN", "MUCS",
	"SPRM", "BYST", "HYST", "TRCH", "BUBB",
	NoneLabel,
}

var index = func() map[string]int {
	m := make(map[string]int, len(labels))
	for i, l := range labels[:CatchAll] {
		m[l] = i
	}
	return m
}()

// IndexOf 把类别助记符映射为矩阵下标。
// 该函数是全函数：任何输入都有合法下标，未识别的字符串（含 "NONE"）一律落到 CatchAll。
// 匹配区分大小写。
func IndexOf(label string) int {
	if i, ok := index[label]; ok {
		return i
	}
	return CatchAll
}

// Size 返回词表大小（即矩阵维度）。
func Size() int { return len(labels) }

// Label 返回下标 i 对应的助记符；越界返回 "NONE"。
func Label(i int) string {
	if i < 0 || i >= len(labels) {
		return NoneLabel
	}
	return labels[i]
}

// Labels 返回全部助记符（按下标顺序，副本）。
func Labels() []string {
	out := make([]string, len(labels))
	copy(out, labels[:])
	return out
}
