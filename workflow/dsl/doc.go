// Package dsl 解析多文档 YAML 定义（kind: Agent / kind: Workflow），
// 校验工作流模板并转换为 workflow.Definition，
// 同时提供按文件路径解析子工作流引用的 FileLoader。
package dsl
