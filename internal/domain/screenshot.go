package domain

// ScreenshotFile 描述一次扫描/监听得到的截图文件（只做 stat，不读内容）。
//
// 不变量：
// - AbsPath 必须是 clean + absolute
// - Ext 已转小写，且在图片扩展名白名单内
type ScreenshotFile struct {
	AbsPath string
	Name    string // 含扩展名的文件名
	Base    string // filename without ext
	Ext     string // ".png"
	Size    int64
	ModUnix int64
}
