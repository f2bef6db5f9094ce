package server

import "arenasync/game"

// DefaultLayout 默认关卡：四角的矩形掩体加中央两块圆石，按世界尺寸缩放
func DefaultLayout(width, height float64) []game.Obstacle {
	w, h := width/16, height/12
	return []game.Obstacle{
		{ID: "cover-nw", Kind: game.ObstacleRect, X: 3 * w, Y: 2 * h, W: 2 * w, H: h / 2},
		{ID: "cover-ne", Kind: game.ObstacleRect, X: 11 * w, Y: 2 * h, W: 2 * w, H: h / 2},
		{ID: "cover-sw", Kind: game.ObstacleRect, X: 3 * w, Y: 9.5 * h, W: 2 * w, H: h / 2},
		{ID: "cover-se", Kind: game.ObstacleRect, X: 11 * w, Y: 9.5 * h, W: 2 * w, H: h / 2},
		{ID: "rock-w", Kind: game.ObstacleCircle, X: 6 * w, Y: 6 * h, R: h / 2},
		{ID: "rock-e", Kind: game.ObstacleCircle, X: 10 * w, Y: 6 * h, R: h / 2},
	}
}
