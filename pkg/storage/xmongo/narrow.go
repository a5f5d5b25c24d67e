package xmongo

import (
	"maps"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// narrow 在 field 上追加操作符条件，保留调用方已有的约束。
//
// field 上没有条件时直接写入 ops；已有操作符文档且与 ops 无同名操作符时合并为一个文档；
// 其余情况（等值条件、同名操作符、非操作符文档）把 ops 作为 $and 的一项追加，
// 原条件原样保留在顶层。
//
// 设计决策: Query.Where 按键覆盖，直接 Where({field: ops}) 会丢掉调用方的条件，
// 游标分页与时间桶都必须经由 narrow 追加边界。
func narrow(q Query, field string, ops bson.M) Query {
	filter := q.Filter()
	existing, ok := filter[field]
	if !ok {
		return q.Where(bson.M{field: ops})
	}

	if cur, isOps := operatorDoc(existing); isOps && !sharesOperator(cur, ops) {
		merged := maps.Clone(cur)
		maps.Copy(merged, ops)
		return q.Where(bson.M{field: merged})
	}

	clauses := andClauses(filter["$and"])
	clauses = append(clauses, bson.M{field: ops})
	return q.Where(bson.M{"$and": clauses})
}

// operatorDoc 判断 v 是否为全部键以 $ 开头的文档，是则返回 bson.M 形式的副本。
func operatorDoc(v any) (bson.M, bool) {
	doc, ok := asDoc(v)
	if !ok || len(doc) == 0 {
		return nil, false
	}
	for k := range doc {
		if !strings.HasPrefix(k, "$") {
			return nil, false
		}
	}
	return maps.Clone(doc), true
}

func sharesOperator(a, b bson.M) bool {
	for k := range b {
		if _, ok := a[k]; ok {
			return true
		}
	}
	return false
}

// andClauses 复制已有的 $and 列表。
func andClauses(v any) bson.A {
	switch list := v.(type) {
	case nil:
		return bson.A{}
	case bson.A:
		return append(bson.A{}, list...)
	case []any:
		return append(bson.A{}, list...)
	case []bson.M:
		out := make(bson.A, 0, len(list)+1)
		for _, m := range list {
			out = append(out, m)
		}
		return out
	case []bson.D:
		out := make(bson.A, 0, len(list)+1)
		for _, d := range list {
			out = append(out, d)
		}
		return out
	default:
		return bson.A{v}
	}
}
